package model

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"charity_bff_v1/pkg/charity"

	"github.com/spf13/cast"
)

// ==================== 向导步骤 ====================

// WizardStep 创建活动向导的步骤，只能线性前进/后退
type WizardStep int

const (
	StepBasicInfo WizardStep = iota
	StepStoryAndMedia
	StepPlanning
	StepReview
)

// StepCount 步骤总数
const StepCount = 4

var stepTitles = [StepCount]string{"Basic Info", "Story & Media", "Planning", "Review"}

// Title 步骤标题
func (s WizardStep) Title() string {
	if s < StepBasicInfo || s > StepReview {
		return ""
	}
	return stepTitles[s]
}

// Progress 进度百分比 (step+1)/4*100
func (s WizardStep) Progress() int {
	return int(s+1) * 100 / StepCount
}

// IsFirst 是否第一步
func (s WizardStep) IsFirst() bool { return s == StepBasicInfo }

// IsLast 是否最后一步
func (s WizardStep) IsLast() bool { return s == StepReview }

// ==================== 活动状态常量 ====================

const (
	CampaignStatusDraft  = "draft"
	CampaignStatusActive = "active"

	MaxCampaignImages = 5
	MaxCampaignTags   = 10
	MinGoal           = 100
)

// Categories 平台支持的活动分类
var Categories = []string{
	"Health & Medical",
	"Education",
	"Environment",
	"Emergency Relief",
	"Animals & Wildlife",
	"Community Development",
	"Children & Youth",
	"Arts & Culture",
	"Sports & Recreation",
	"Technology",
}

// IsValidCategory 分类是否在固定列表中
func IsValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// ==================== 表单字段 ====================

// Beneficiaries 受益人（Count 为 nil 表示未填写，0 是合法值）
type Beneficiaries struct {
	Count       *int   `json:"count"`
	Description string `json:"description"`
}

// DraftFields 向导表单中可编辑的字段，全部保留用户原始输入
type DraftFields struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	ShortDescription string `json:"short_description"`
	Story            string `json:"story"`
	Goal             string `json:"goal"` // 文本输入，发布时转换为数字
	Category         string `json:"category"`
	EndDate          string `json:"end_date"` // YYYY-MM-DD

	Location      charity.Location `json:"location"`
	Beneficiaries Beneficiaries    `json:"beneficiaries"`
	Images        []string         `json:"images"`
	Tags          []string         `json:"tags"`

	OrganizationName  string `json:"organization_name"`
	OrganizationEmail string `json:"organization_email"`

	Timeline string `json:"timeline"`
	Budget   string `json:"budget"`
	Risks    string `json:"risks"`

	// nil 表示沿用平台默认值
	Features *charity.Features `json:"features"`
	SEO      charity.SEO       `json:"seo"`
}

// EffectiveFeatures 用户未设置时返回默认开关
func (f *DraftFields) EffectiveFeatures() charity.Features {
	if f.Features != nil {
		return *f.Features
	}
	return charity.DefaultFeatures()
}

// ==================== 步骤校验 ====================

// CanAdvance 当前步骤是否满足前进条件
// 标题/描述/故事使用原始长度，组织名、时间线、预算使用去空格后的长度
func CanAdvance(step WizardStep, f *DraftFields) bool {
	switch step {
	case StepBasicInfo:
		goal, ok := ParseGoal(f.Goal)
		return between(runeLen(f.Title), 10, 100) &&
			between(runeLen(f.Description), 50, 5000) &&
			ok && goal >= MinGoal &&
			IsValidCategory(f.Category) &&
			f.EndDate != "" &&
			runeLen(strings.TrimSpace(f.OrganizationName)) >= 2 &&
			strings.Contains(f.OrganizationEmail, "@")
	case StepStoryAndMedia:
		return runeLen(f.Story) >= 10
	case StepPlanning:
		return runeLen(strings.TrimSpace(f.Timeline)) >= 10 &&
			runeLen(strings.TrimSpace(f.Budget)) >= 10
	default:
		return true
	}
}

// 全量校验的错误信息，顺序固定
const (
	MsgTitleLength       = "Title must be between 10 and 100 characters."
	MsgDescriptionLength = "Description must be between 50 and 5000 characters."
	MsgOrganizationName  = "Organization name is required and must be at least 2 characters."
	MsgOrganizationEmail = "Valid organization email is required."
	MsgGoal              = "Goal must be a valid number and at least 100."
	MsgCategory          = "Category is required."
	MsgEndDateRequired   = "End date is required."
	MsgEndDateFuture     = "End date must be a valid future date."
	MsgStory             = "Campaign story is required and must be at least 10 characters."
	MsgTimeline          = "Implementation timeline is required."
	MsgBudget            = "Budget breakdown is required."
)

// Validate 与步骤无关的全量校验，返回全部未通过的规则
func Validate(f *DraftFields, now time.Time) []string {
	var errs []string

	if !between(runeLen(strings.TrimSpace(f.Title)), 10, 100) {
		errs = append(errs, MsgTitleLength)
	}
	if !between(runeLen(strings.TrimSpace(f.Description)), 50, 5000) {
		errs = append(errs, MsgDescriptionLength)
	}
	if runeLen(strings.TrimSpace(f.OrganizationName)) < 2 {
		errs = append(errs, MsgOrganizationName)
	}
	if !strings.Contains(f.OrganizationEmail, "@") {
		errs = append(errs, MsgOrganizationEmail)
	}
	if goal, ok := ParseGoal(f.Goal); !ok || goal < MinGoal {
		errs = append(errs, MsgGoal)
	}
	if !IsValidCategory(f.Category) {
		errs = append(errs, MsgCategory)
	}
	if f.EndDate == "" {
		errs = append(errs, MsgEndDateRequired)
	} else if end, ok := ParseEndDate(f.EndDate); !ok || !end.After(now) {
		errs = append(errs, MsgEndDateFuture)
	}
	if runeLen(strings.TrimSpace(f.Story)) < 10 {
		errs = append(errs, MsgStory)
	}
	if runeLen(strings.TrimSpace(f.Timeline)) < 10 {
		errs = append(errs, MsgTimeline)
	}
	if runeLen(strings.TrimSpace(f.Budget)) < 10 {
		errs = append(errs, MsgBudget)
	}

	return errs
}

// ValidationError 发布前的全量校验失败
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, " ")
}

// ==================== 值转换 ====================

// ParseGoal 严格解析目标金额：空串、非数字、NaN、Inf 都视为无效
func ParseGoal(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	v, err := cast.ToFloat64E(s)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseEndDate 把 YYYY-MM-DD 解析为当天 UTC 零点
func ParseEndDate(date string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// NormalizeEndDate 输出平台要求的 YYYY-MM-DDT00:00:00.000Z
func NormalizeEndDate(date string) string {
	return date + "T00:00:00.000Z"
}

// NormalizeTags 逗号分隔输入 -> 去空格、去空、去重（保留首次出现顺序），最多 10 个
func NormalizeTags(input string) []string {
	tags := make([]string, 0, MaxCampaignTags)
	seen := make(map[string]struct{})
	for _, part := range strings.Split(input, ",") {
		tag := strings.TrimSpace(part)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == MaxCampaignTags {
			break
		}
	}
	return tags
}

// ==================== 请求体构建 ====================

// BuildDraftPayload 草稿请求体：只发送已填写的字段
func BuildDraftPayload(f *DraftFields) *charity.CampaignInput {
	in := &charity.CampaignInput{
		Title:             f.Title,
		Description:       f.Description,
		ShortDescription:  f.ShortDescription,
		Story:             f.Story,
		Category:          f.Category,
		OrganizationName:  f.OrganizationName,
		OrganizationEmail: f.OrganizationEmail,
		Timeline:          f.Timeline,
		Budget:            f.Budget,
		Risks:             f.Risks,
	}

	if goal, ok := ParseGoal(f.Goal); ok {
		in.Goal = &goal
	}
	if f.EndDate != "" {
		in.EndDate = NormalizeEndDate(f.EndDate)
	}
	if !f.Location.IsEmpty() {
		loc := f.Location
		in.Location = &loc
	}
	if f.Beneficiaries.Count != nil || f.Beneficiaries.Description != "" {
		in.Beneficiaries = toBeneficiaries(f.Beneficiaries)
	}
	if len(f.Images) > 0 {
		in.Images = append([]string(nil), f.Images...)
	}
	if len(f.Tags) > 0 {
		in.Tags = append([]string(nil), f.Tags...)
	}
	if f.Features != nil {
		features := *f.Features
		in.Features = &features
	}
	if !f.SEO.IsEmpty() {
		seo := f.SEO
		in.SEO = &seo
	}

	return in
}

// BuildPublishPayload 发布请求体：必填字段齐全，可选字段为空时省略
// 调用前必须先通过 Validate
func BuildPublishPayload(f *DraftFields) *charity.CampaignInput {
	goal, _ := ParseGoal(f.Goal)
	features := f.EffectiveFeatures()

	count := 0
	if f.Beneficiaries.Count != nil {
		count = *f.Beneficiaries.Count
	}

	in := &charity.CampaignInput{
		Title:             f.Title,
		Description:       f.Description,
		ShortDescription:  f.ShortDescription,
		Story:             f.Story,
		Goal:              &goal,
		Category:          f.Category,
		EndDate:           NormalizeEndDate(f.EndDate),
		Beneficiaries:     &charity.Beneficiaries{Count: &count, Description: f.Beneficiaries.Description},
		OrganizationName:  f.OrganizationName,
		OrganizationEmail: f.OrganizationEmail,
		Timeline:          f.Timeline,
		Budget:            f.Budget,
		Risks:             f.Risks,
		Features:          &features,
	}

	if !f.Location.IsEmpty() {
		loc := f.Location
		in.Location = &loc
	}
	if len(f.Images) > 0 {
		in.Images = append([]string(nil), f.Images...)
	}
	if len(f.Tags) > 0 {
		in.Tags = append([]string(nil), f.Tags...)
	}
	if !f.SEO.IsEmpty() {
		seo := f.SEO
		in.SEO = &seo
	}

	return in
}

func toBeneficiaries(b Beneficiaries) *charity.Beneficiaries {
	out := &charity.Beneficiaries{Description: b.Description}
	if b.Count != nil {
		count := *b.Count
		out.Count = &count
	}
	return out
}

// ==================== 加载已有草稿 ====================

// CanLoadStatus 只有草稿和进行中的活动可以回填到向导
func CanLoadStatus(status string) bool {
	return status == CampaignStatusDraft || status == CampaignStatusActive
}

// MergeCampaign 用平台记录覆盖表单字段，记录中缺失（或为空）的字段保留当前值
func MergeCampaign(f *DraftFields, c *charity.Campaign) {
	f.Title = firstNonEmpty(c.Title, f.Title)
	f.Description = firstNonEmpty(c.Description, f.Description)
	f.ShortDescription = firstNonEmpty(c.ShortDescription, f.ShortDescription)
	f.Story = firstNonEmpty(c.Story, f.Story)
	f.Category = firstNonEmpty(c.Category, f.Category)
	f.OrganizationName = firstNonEmpty(c.OrganizationName, f.OrganizationName)
	f.OrganizationEmail = firstNonEmpty(c.OrganizationEmail, f.OrganizationEmail)
	f.Timeline = firstNonEmpty(c.Timeline, f.Timeline)
	f.Budget = firstNonEmpty(c.Budget, f.Budget)
	f.Risks = firstNonEmpty(c.Risks, f.Risks)

	if goal, ok := c.GoalAmount(); ok {
		f.Goal = cast.ToString(goal)
	}
	if len(c.EndDate) >= 10 {
		if t, err := time.Parse(time.RFC3339, c.EndDate); err == nil {
			f.EndDate = t.UTC().Format("2006-01-02")
		} else {
			f.EndDate = c.EndDate[:10]
		}
	}
	if loc := c.LocationValue(); !loc.IsEmpty() {
		f.Location = loc
	}
	if c.Beneficiaries != nil {
		f.Beneficiaries = Beneficiaries{Count: c.Beneficiaries.Count, Description: c.Beneficiaries.Description}
	}
	if urls := c.ImageURLs(); urls != nil {
		f.Images = urls
	}
	if c.Tags != nil {
		f.Tags = c.Tags
	}
	if c.Features != nil {
		features := *c.Features
		f.Features = &features
	}
	if c.SEO != nil {
		f.SEO = *c.SEO
	}
}

// ==================== 局部更新 ====================

// DraftFieldsPatch PATCH 请求中出现的字段才会被修改
type DraftFieldsPatch struct {
	Title            *string `json:"title"`
	Description      *string `json:"description"`
	ShortDescription *string `json:"short_description"`
	Story            *string `json:"story"`
	Goal             *string `json:"goal"`
	Category         *string `json:"category"`
	EndDate          *string `json:"end_date"`

	Location      *charity.Location `json:"location"`
	Beneficiaries *Beneficiaries    `json:"beneficiaries"`
	TagsInput     *string           `json:"tags_input"` // 逗号分隔

	OrganizationName  *string `json:"organization_name"`
	OrganizationEmail *string `json:"organization_email"`

	Timeline *string `json:"timeline"`
	Budget   *string `json:"budget"`
	Risks    *string `json:"risks"`

	Features *charity.Features `json:"features"`
	SEO      *charity.SEO      `json:"seo"`
}

// Apply 把补丁写入表单
func (p *DraftFieldsPatch) Apply(f *DraftFields) {
	setIf(&f.Title, p.Title)
	setIf(&f.Description, p.Description)
	setIf(&f.ShortDescription, p.ShortDescription)
	setIf(&f.Story, p.Story)
	setIf(&f.Goal, p.Goal)
	setIf(&f.Category, p.Category)
	setIf(&f.EndDate, p.EndDate)
	setIf(&f.OrganizationName, p.OrganizationName)
	setIf(&f.OrganizationEmail, p.OrganizationEmail)
	setIf(&f.Timeline, p.Timeline)
	setIf(&f.Budget, p.Budget)
	setIf(&f.Risks, p.Risks)

	if p.Location != nil {
		f.Location = *p.Location
	}
	if p.Beneficiaries != nil {
		f.Beneficiaries = *p.Beneficiaries
	}
	if p.TagsInput != nil {
		f.Tags = NormalizeTags(*p.TagsInput)
	}
	if p.Features != nil {
		features := *p.Features
		f.Features = &features
	}
	if p.SEO != nil {
		f.SEO = *p.SEO
	}
}

// ==================== 工具函数 ====================

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func between(n, lo, hi int) bool {
	return n >= lo && n <= hi
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
