package dto

import "time"

// ==================== 请求 DTO ====================

// ObserveLikeRequest 前端拿到活动详情后上报服务端的点赞值
type ObserveLikeRequest struct {
	ServerLiked *bool `json:"server_liked"`
}

// ToggleLikeRequest 点赞切换请求
type ToggleLikeRequest struct {
	// 前端当前显示的值，缺省时使用服务端记录的显示值
	CurrentlyLiked *bool `json:"currently_liked"`
}

// ==================== 响应 DTO ====================

// LikeStateResponse 点赞显示状态
type LikeStateResponse struct {
	CampaignID string `json:"campaign_id"`
	Liked      bool   `json:"liked"`
	Source     string `json:"source"`
	Pending    bool   `json:"pending"`
}

// ==================== 提示 ====================

// NoticeLevelError 失败提示
const NoticeLevelError = "error"

// Notice 异步操作结果提示
type Notice struct {
	Level      string    `json:"level"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	CampaignID string    `json:"campaign_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
