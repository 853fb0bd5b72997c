package controller

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"charity_bff_v1/internal/api/dto"
	"charity_bff_v1/internal/middleware"
	"charity_bff_v1/internal/model"
	"charity_bff_v1/internal/service"
	"charity_bff_v1/pkg/charity"
	"charity_bff_v1/pkg/utils"
)

// ==================== 控制器 ====================

// WizardController 创建活动向导控制器
type WizardController struct {
	wizard *service.WizardService
	log    *zap.Logger
}

func NewWizardController(wizard *service.WizardService, log *zap.Logger) *WizardController {
	if log == nil {
		log = zap.NewNop()
	}
	return &WizardController{wizard: wizard, log: log}
}

// ==================== 会话 ====================

// Start 新建向导会话
func (ctrl *WizardController) Start(c *gin.Context) {
	view, err := ctrl.wizard.Start(c.Request.Context(), middleware.GetViewerID(c))
	if err != nil {
		ctrl.fail(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    0,
		"message": "success",
		"data":    view,
	})
}

// Get 读取会话快照
func (ctrl *WizardController) Get(c *gin.Context) {
	view, err := ctrl.wizard.View(middleware.GetViewerID(c), c.Param("sid"))
	if err != nil {
		ctrl.fail(c, err, nil)
		return
	}
	ctrl.ok(c, view)
}

// Discard 关闭会话
func (ctrl *WizardController) Discard(c *gin.Context) {
	if err := ctrl.wizard.Discard(middleware.GetViewerID(c), c.Param("sid")); err != nil {
		ctrl.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
	})
}

// ==================== 表单与步骤 ====================

// UpdateFields 局部更新表单字段
func (ctrl *WizardController) UpdateFields(c *gin.Context) {
	var req dto.UpdateWizardFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "invalid request: " + err.Error(),
		})
		return
	}

	ctrl.do(c, func(w *service.DraftWorkflow) error {
		w.UpdateFields(&req.DraftFieldsPatch)
		return nil
	})
}

// Next 前进一步
func (ctrl *WizardController) Next(c *gin.Context) {
	ctrl.do(c, func(w *service.DraftWorkflow) error { return w.Next() })
}

// Prev 后退一步
func (ctrl *WizardController) Prev(c *gin.Context) {
	ctrl.do(c, func(w *service.DraftWorkflow) error { return w.Prev() })
}

// ==================== 保存与发布 ====================

// SaveDraft 保存草稿
func (ctrl *WizardController) SaveDraft(c *gin.Context) {
	ctx := c.Request.Context()
	var draftID string
	view, err := ctrl.wizard.Do(middleware.GetViewerID(c), c.Param("sid"), func(w *service.DraftWorkflow) error {
		var err error
		draftID, err = w.SaveDraft(ctx)
		return err
	})
	if err != nil {
		ctrl.fail(c, err, view)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "Draft saved successfully!",
		"data": gin.H{
			"draft_id": draftID,
			"wizard":   view,
		},
	})
}

// Publish 发布活动
func (ctrl *WizardController) Publish(c *gin.Context) {
	ctx := c.Request.Context()
	var campaign *charity.Campaign
	view, err := ctrl.wizard.Do(middleware.GetViewerID(c), c.Param("sid"), func(w *service.DraftWorkflow) error {
		var err error
		campaign, err = w.Publish(ctx)
		return err
	})
	if err != nil {
		ctrl.fail(c, err, view)
		return
	}

	ctrl.log.Info("[Wizard] 活动已发布", zap.String("campaign", view.PublishedID), zap.String("viewer", middleware.GetViewerID(c)))
	c.JSON(http.StatusCreated, gin.H{
		"code":    0,
		"message": "Campaign published successfully!",
		"data": gin.H{
			"campaign": campaign,
			"wizard":   view,
		},
	})
}

// ==================== 图片 ====================

// UploadImages 上传活动图片，表单字段 images 可重复
func (ctrl *WizardController) UploadImages(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": service.MsgImageNoneGiven,
		})
		return
	}

	files, err := readImageFiles(form.File["images"])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "invalid upload: " + err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	var added []charity.UploadedImage
	view, err := ctrl.wizard.Do(middleware.GetViewerID(c), c.Param("sid"), func(w *service.DraftWorkflow) error {
		var err error
		added, err = w.UploadImages(ctx, files)
		return err
	})
	if err != nil {
		ctrl.fail(c, err, view)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    0,
		"message": "Images uploaded successfully!",
		"data": gin.H{
			"images": added,
			"wizard": view,
		},
	})
}

// RemoveImage 删除已上传图片
func (ctrl *WizardController) RemoveImage(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "invalid image index",
		})
		return
	}

	ctx := c.Request.Context()
	ctrl.do(c, func(w *service.DraftWorkflow) error { return w.RemoveImage(ctx, index) })
}

// ==================== 加载草稿 ====================

// LoadDraft 把已有草稿回填到向导
func (ctrl *WizardController) LoadDraft(c *gin.Context) {
	ctx := c.Request.Context()
	draftID := c.Param("draft_id")

	var loaded bool
	view, err := ctrl.wizard.Do(middleware.GetViewerID(c), c.Param("sid"), func(w *service.DraftWorkflow) error {
		var err error
		loaded, err = w.LoadDraft(ctx, draftID)
		return err
	})
	if err != nil {
		ctrl.fail(c, err, view)
		return
	}

	ctrl.ok(c, dto.LoadDraftResponse{Loaded: loaded, Wizard: view})
}

// Categories 可选分类
func (ctrl *WizardController) Categories(c *gin.Context) {
	ctrl.ok(c, ctrl.wizard.Categories())
}

// ==================== 辅助函数 ====================

func (ctrl *WizardController) do(c *gin.Context, fn func(w *service.DraftWorkflow) error) {
	view, err := ctrl.wizard.Do(middleware.GetViewerID(c), c.Param("sid"), fn)
	if err != nil {
		ctrl.fail(c, err, view)
		return
	}
	ctrl.ok(c, view)
}

func (ctrl *WizardController) ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

// fail 按错误类型映射状态码，操作失败时仍附带最新快照
func (ctrl *WizardController) fail(c *gin.Context, err error, view *dto.WizardView) {
	status, message := statusFor(err)
	data := gin.H{}
	if view != nil {
		data["wizard"] = view
	}

	var verr *model.ValidationError
	if errors.As(err, &verr) {
		data["errors"] = verr.Messages
	}
	var apiErr *charity.APIError
	if errors.As(err, &apiErr) {
		if len(apiErr.Details) > 0 {
			data["details"] = apiErr.Details
		}
		if errors.Is(err, service.ErrDraftSaveFailed) {
			data["reason"] = apiErr.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		ctrl.log.Warn("[Wizard] 操作失败", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}

// statusFor 错误到 HTTP 状态码与提示的映射
func statusFor(err error) (int, string) {
	var (
		verr     *model.ValidationError
		rejected *service.ImageRejectedError
		apiErr   *charity.APIError
	)

	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, "Please fix the errors before publishing."
	case errors.Is(err, service.ErrStepIncomplete):
		return http.StatusUnprocessableEntity, "Please complete all required fields before continuing."
	case errors.Is(err, service.ErrAtFirstStep),
		errors.Is(err, service.ErrAtLastStep),
		errors.Is(err, service.ErrNotAtReview),
		errors.Is(err, service.ErrWorkflowCompleted):
		return http.StatusConflict, err.Error()
	case errors.As(err, &rejected):
		return http.StatusBadRequest, rejected.Error()
	case errors.Is(err, service.ErrImageIndexOutOfRange):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, charity.NetworkErrorMessage
	}

	// 保存草稿失败统一提示，平台原因放在 data.details
	saveFailed := errors.Is(err, service.ErrDraftSaveFailed)
	message := err.Error()
	if errors.As(err, &apiErr) {
		message = apiErr.Error()
	}
	if saveFailed {
		message = service.ErrDraftSaveFailed.Error()
	}

	if apiErr != nil {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return apiErr.StatusCode, message
		}
		if apiErr.Network {
			return http.StatusServiceUnavailable, message
		}
		return http.StatusBadGateway, message
	}
	if saveFailed {
		return http.StatusBadGateway, message
	}
	return http.StatusInternalServerError, message
}

// readImageFiles 读取上传文件，单个文件最多读取上限 + 1 字节以便判断超限
func readImageFiles(headers []*multipart.FileHeader) ([]charity.ImageFile, error) {
	files := make([]charity.ImageFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(io.LimitReader(f, utils.MaxImageBytes+1))
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, charity.ImageFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}
