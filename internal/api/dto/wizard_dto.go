package dto

import (
	"charity_bff_v1/internal/model"
	"charity_bff_v1/pkg/charity"
)

// ==================== 请求 DTO ====================

// UpdateWizardFieldsRequest 局部更新向导字段，未出现的字段保持不变
type UpdateWizardFieldsRequest struct {
	model.DraftFieldsPatch
}

// ListDraftsRequest 草稿列表筛选
type ListDraftsRequest struct {
	Query string `form:"q"`
	Sort  string `form:"sort" binding:"omitempty,oneof=updated created title"`
}

// ==================== 响应 DTO ====================

// WizardView 向导会话快照
type WizardView struct {
	SessionID          string                  `json:"session_id"`
	DraftID            string                  `json:"draft_id,omitempty"`
	Step               int                     `json:"step"`
	StepTitle          string                  `json:"step_title"`
	Progress           int                     `json:"progress"`
	CanAdvance         bool                    `json:"can_advance"`
	CanPublish         bool                    `json:"can_publish"`
	SaveDraftAvailable bool                    `json:"save_draft_available"`
	ValidationErrors   []string                `json:"validation_errors"`
	Fields             model.DraftFields       `json:"fields"`
	Images             []charity.UploadedImage `json:"images"`
	Completed          bool                    `json:"completed"`
	PublishedID        string                  `json:"published_id,omitempty"`
}

// DraftListItem 草稿列表条目
type DraftListItem struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Category  string   `json:"category,omitempty"`
	Goal      *float64 `json:"goal,omitempty"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// LoadDraftResponse 回填草稿结果
type LoadDraftResponse struct {
	Loaded bool        `json:"loaded"`
	Wizard *WizardView `json:"wizard"`
}
