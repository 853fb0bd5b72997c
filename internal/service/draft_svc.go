package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"charity_bff_v1/internal/model"
	"charity_bff_v1/pkg/charity"
	"charity_bff_v1/pkg/utils"
)

// ==================== 外部服务依赖 ====================

// CampaignAPIInterface 平台活动/草稿接口
type CampaignAPIInterface interface {
	CreateDraft(ctx context.Context, in *charity.CampaignInput) (*charity.DraftCreated, error)
	UpdateCampaign(ctx context.Context, campaignID string, in *charity.CampaignInput) (*charity.Campaign, error)
	CreateCampaign(ctx context.Context, in *charity.CampaignInput) (*charity.Campaign, error)
	PublishCampaign(ctx context.Context, campaignID string, in *charity.CampaignInput) (*charity.Campaign, error)
	GetCampaign(ctx context.Context, campaignID string) (*charity.Campaign, error)
	DeleteDraft(ctx context.Context, campaignID string) error
	GetMyDrafts(ctx context.Context) ([]charity.DraftSummary, error)
}

// ImageAPIInterface 平台图片接口
type ImageAPIInterface interface {
	UploadCampaignImages(ctx context.Context, files []charity.ImageFile) ([]charity.UploadedImage, error)
	DeleteCampaignImage(ctx context.Context, filename string) error
}

// ==================== 错误定义 ====================

var (
	ErrStepIncomplete       = errors.New("current step is incomplete")
	ErrAtFirstStep          = errors.New("already at the first step")
	ErrAtLastStep           = errors.New("already at the last step")
	ErrNotAtReview          = errors.New("publish is only available from the review step")
	ErrWorkflowCompleted    = errors.New("campaign has already been published")
	ErrImageIndexOutOfRange = errors.New("image index out of range")

	// ErrDraftSaveFailed 保存草稿失败的统一提示，具体原因通过 errors.Unwrap 获取
	ErrDraftSaveFailed = errors.New("Failed to save draft.")
)

// 图片校验提示
const (
	MsgImageLimit     = "You can upload a maximum of 5 images."
	MsgImageNoneGiven = "Please select at least one image."
)

// ImageRejectedError 上传前校验不通过，整批拒绝且不发起网络请求
type ImageRejectedError struct {
	Reason string
	File   string
}

func (e *ImageRejectedError) Error() string {
	if e.File == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (%s)", e.Reason, e.File)
}

// ==================== 向导状态机 ====================

// DraftWorkflow 创建活动向导：四个线性步骤 + 保存草稿/发布/图片等副作用
// 非并发安全，由 WizardService 按会话加锁
type DraftWorkflow struct {
	campaigns CampaignAPIInterface
	images    ImageAPIInterface
	now       func() time.Time

	step      model.WizardStep
	fields    model.DraftFields
	draftID   string
	uploaded  []charity.UploadedImage
	published *charity.Campaign
}

// NewDraftWorkflow 创建向导，初始停在第一步
func NewDraftWorkflow(campaigns CampaignAPIInterface, images ImageAPIInterface, now func() time.Time) *DraftWorkflow {
	if now == nil {
		now = time.Now
	}
	return &DraftWorkflow{
		campaigns: campaigns,
		images:    images,
		now:       now,
		step:      model.StepBasicInfo,
	}
}

// Step 当前步骤
func (w *DraftWorkflow) Step() model.WizardStep { return w.step }

// DraftID 已保存草稿的 id，未保存时为空
func (w *DraftWorkflow) DraftID() string { return w.draftID }

// Completed 是否已发布成功
func (w *DraftWorkflow) Completed() bool { return w.published != nil }

// Published 发布成功后的活动记录
func (w *DraftWorkflow) Published() *charity.Campaign { return w.published }

// Fields 表单字段副本
func (w *DraftWorkflow) Fields() model.DraftFields {
	f := w.fields
	f.Images = append([]string(nil), w.fields.Images...)
	f.Tags = append([]string(nil), w.fields.Tags...)
	return f
}

// Images 已上传图片副本
func (w *DraftWorkflow) Images() []charity.UploadedImage {
	return append([]charity.UploadedImage(nil), w.uploaded...)
}

// CanAdvance 当前步骤是否可以前进
func (w *DraftWorkflow) CanAdvance() bool {
	return model.CanAdvance(w.step, &w.fields)
}

// Validate 全量校验
func (w *DraftWorkflow) Validate() []string {
	return model.Validate(&w.fields, w.now())
}

// SeedOrganization 用登录用户资料预填组织信息，已填写的字段不覆盖
func (w *DraftWorkflow) SeedOrganization(name, email string) {
	if w.fields.OrganizationName == "" {
		w.fields.OrganizationName = name
	}
	if w.fields.OrganizationEmail == "" {
		w.fields.OrganizationEmail = email
	}
}

// UpdateFields 局部更新表单
// 图片列表只能通过上传/删除修改
func (w *DraftWorkflow) UpdateFields(patch *model.DraftFieldsPatch) {
	if patch != nil {
		patch.Apply(&w.fields)
	}
}

// ==================== 步骤切换 ====================

// Next 前进一步，当前步骤未完成时返回 ErrStepIncomplete
func (w *DraftWorkflow) Next() error {
	if w.step.IsLast() {
		return ErrAtLastStep
	}
	if !w.CanAdvance() {
		return ErrStepIncomplete
	}
	w.step++
	return nil
}

// Prev 后退一步，不做校验
func (w *DraftWorkflow) Prev() error {
	if w.step.IsFirst() {
		return ErrAtFirstStep
	}
	w.step--
	return nil
}

// ==================== 保存草稿 ====================

// SaveDraft 保存当前已填写的字段，不做全量校验
// 第一次保存创建草稿并记住 id，之后都是更新
func (w *DraftWorkflow) SaveDraft(ctx context.Context) (string, error) {
	payload := model.BuildDraftPayload(&w.fields)

	if w.draftID != "" {
		if _, err := w.campaigns.UpdateCampaign(ctx, w.draftID, payload); err != nil {
			return w.draftID, fmt.Errorf("%w: %w", ErrDraftSaveFailed, err)
		}
		return w.draftID, nil
	}

	created, err := w.campaigns.CreateDraft(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDraftSaveFailed, err)
	}
	w.draftID = created.Campaign.ID
	return w.draftID, nil
}

// ==================== 发布 ====================

// Publish 全量校验通过后发布：已有草稿则更新为 active，否则直接创建
// 校验失败返回 *model.ValidationError 且不发起任何网络请求
func (w *DraftWorkflow) Publish(ctx context.Context) (*charity.Campaign, error) {
	if w.Completed() {
		return w.published, ErrWorkflowCompleted
	}

	if msgs := w.Validate(); len(msgs) > 0 {
		return nil, &model.ValidationError{Messages: msgs}
	}
	if w.step != model.StepReview {
		return nil, ErrNotAtReview
	}

	payload := model.BuildPublishPayload(&w.fields)

	var (
		campaign *charity.Campaign
		err      error
	)
	if w.draftID != "" {
		campaign, err = w.campaigns.PublishCampaign(ctx, w.draftID, payload)
	} else {
		campaign, err = w.campaigns.CreateCampaign(ctx, payload)
	}
	if err != nil {
		return nil, err
	}

	if campaign == nil {
		campaign = &charity.Campaign{}
	}
	if campaign.ID == "" {
		campaign.ID = w.draftID
	}
	w.published = campaign
	return campaign, nil
}

// ==================== 图片 ====================

// UploadImages 批量上传，任意一张不合法则整批拒绝
func (w *DraftWorkflow) UploadImages(ctx context.Context, files []charity.ImageFile) ([]charity.UploadedImage, error) {
	if len(files) == 0 {
		return nil, &ImageRejectedError{Reason: MsgImageNoneGiven}
	}
	if len(w.uploaded)+len(files) > model.MaxCampaignImages {
		return nil, &ImageRejectedError{Reason: MsgImageLimit}
	}

	checked := make([]charity.ImageFile, len(files))
	for i, f := range files {
		mime, err := utils.ValidateImage(f.Data, f.ContentType)
		if err != nil {
			reason := utils.ErrNotImage.Error()
			if errors.Is(err, utils.ErrImageTooLarge) {
				reason = utils.ErrImageTooLarge.Error()
			}
			return nil, &ImageRejectedError{Reason: reason, File: f.Name}
		}
		f.ContentType = mime
		checked[i] = f
	}

	added, err := w.images.UploadCampaignImages(ctx, checked)
	if err != nil {
		return nil, err
	}

	for _, img := range added {
		w.uploaded = append(w.uploaded, img)
		w.fields.Images = append(w.fields.Images, img.URL)
	}
	return added, nil
}

// RemoveImage 先删除远程文件，成功后再从本地列表移除
func (w *DraftWorkflow) RemoveImage(ctx context.Context, index int) error {
	if index < 0 || index >= len(w.uploaded) {
		return ErrImageIndexOutOfRange
	}

	img := w.uploaded[index]
	if err := w.images.DeleteCampaignImage(ctx, img.Filename); err != nil {
		return err
	}

	// 两个列表按下标一一对应，重复 URL 也只删一项
	w.uploaded = append(w.uploaded[:index:index], w.uploaded[index+1:]...)
	if index < len(w.fields.Images) {
		w.fields.Images = append(w.fields.Images[:index:index], w.fields.Images[index+1:]...)
	}
	return nil
}

// ==================== 加载已有草稿 ====================

// LoadDraft 把平台上的草稿回填到向导，只接受 draft/active 状态
// 状态不符时不做任何修改，返回 loaded=false
func (w *DraftWorkflow) LoadDraft(ctx context.Context, campaignID string) (bool, error) {
	campaign, err := w.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if campaign == nil || !model.CanLoadStatus(campaign.Status) {
		return false, nil
	}

	model.MergeCampaign(&w.fields, campaign)
	w.draftID = campaignID

	w.uploaded = make([]charity.UploadedImage, 0, len(w.fields.Images))
	for _, u := range w.fields.Images {
		w.uploaded = append(w.uploaded, charity.UploadedImageFromURL(u))
	}
	return true, nil
}
