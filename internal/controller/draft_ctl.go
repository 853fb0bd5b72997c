package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"charity_bff_v1/internal/api/dto"
	"charity_bff_v1/internal/service"
)

// ==================== 控制器 ====================

// DraftController 我的草稿列表
type DraftController struct {
	wizard *service.WizardService
}

func NewDraftController(wizard *service.WizardService) *DraftController {
	return &DraftController{wizard: wizard}
}

// ==================== API 方法 ====================

// ListDrafts 当前用户的草稿
func (ctrl *DraftController) ListDrafts(c *gin.Context) {
	var req dto.ListDraftsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "invalid request: " + err.Error(),
		})
		return
	}

	items, err := ctrl.wizard.ListDrafts(c.Request.Context(), req.Query, req.Sort)
	if err != nil {
		status, message := statusFor(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": message,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data": gin.H{
			"list":  items,
			"total": len(items),
		},
	})
}

// DeleteDraft 删除草稿
func (ctrl *DraftController) DeleteDraft(c *gin.Context) {
	if err := ctrl.wizard.DeleteDraft(c.Request.Context(), c.Param("id")); err != nil {
		status, message := statusFor(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": message,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "Draft deleted successfully",
	})
}
