package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"charity_bff_v1/internal/api/dto"
	"charity_bff_v1/internal/middleware"
	"charity_bff_v1/internal/model"
	"charity_bff_v1/internal/service"
)

// ==================== 控制器 ====================

// LikeController 点赞控制器
type LikeController struct {
	likes   *service.LikeService
	notices *service.NoticeBox
}

func NewLikeController(likes *service.LikeService, notices *service.NoticeBox) *LikeController {
	return &LikeController{likes: likes, notices: notices}
}

// ==================== API 方法 ====================

// GetLike 读取点赞显示值
func (ctrl *LikeController) GetLike(c *gin.Context) {
	campaignID := c.Param("id")

	var serverValue *bool
	if raw, ok := c.GetQuery("server_liked"); ok {
		v, err := cast.ToBoolE(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    400,
				"message": "server_liked must be a boolean",
			})
			return
		}
		serverValue = &v
	}

	r := ctrl.likes.For(c.Request.Context(), middleware.GetViewerID(c))
	r.GetDisplayedLiked(c.Request.Context(), campaignID, serverValue)

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    toLikeState(r.Displayed(campaignID)),
	})
}

// ObserveLike 上报服务端点赞值
func (ctrl *LikeController) ObserveLike(c *gin.Context) {
	var req dto.ObserveLikeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ServerLiked == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "server_liked is required",
		})
		return
	}

	campaignID := c.Param("id")
	r := ctrl.likes.For(c.Request.Context(), middleware.GetViewerID(c))
	r.Observe(c.Request.Context(), campaignID, *req.ServerLiked)

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    toLikeState(r.Displayed(campaignID)),
	})
}

// ToggleLike 乐观切换点赞
// 立即返回切换后的显示值，远程结果通过 /api/notices 与后续读取体现
func (ctrl *LikeController) ToggleLike(c *gin.Context) {
	var req dto.ToggleLikeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    400,
				"message": "invalid request: " + err.Error(),
			})
			return
		}
	}

	ctx := c.Request.Context()
	campaignID := c.Param("id")
	r := ctrl.likes.For(ctx, middleware.GetViewerID(c))

	currentlyLiked := r.Displayed(campaignID).Liked
	if req.CurrentlyLiked != nil {
		currentlyLiked = *req.CurrentlyLiked
	}

	state, err := r.Toggle(ctx, campaignID, currentlyLiked)
	if err != nil {
		if errors.Is(err, model.ErrToggleInFlight) {
			c.JSON(http.StatusConflict, gin.H{
				"code":    409,
				"message": "A like update for this campaign is already in progress.",
				"data":    toLikeState(state),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"code":    0,
		"message": "success",
		"data":    toLikeState(state),
	})
}

// DrainNotices 取出当前用户待显示的提示
func (ctrl *LikeController) DrainNotices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    ctrl.notices.Drain(middleware.GetViewerID(c)),
	})
}

func toLikeState(s model.CampaignLikeState) dto.LikeStateResponse {
	return dto.LikeStateResponse{
		CampaignID: s.CampaignID,
		Liked:      s.Liked,
		Source:     string(s.Source),
		Pending:    s.Pending(),
	}
}
