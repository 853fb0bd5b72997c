package model

import "errors"

// ==================== 点赞状态机 ====================

// LikePhase 单个活动的点赞请求阶段
// idle -> pending -> committed | rolledback -> (下一次点击) pending
type LikePhase int

const (
	LikeIdle LikePhase = iota
	LikePending
	LikeCommitted
	LikeRolledBack
)

var likePhaseNames = map[LikePhase]string{
	LikeIdle:       "idle",
	LikePending:    "pending",
	LikeCommitted:  "committed",
	LikeRolledBack: "rolledback",
}

func (p LikePhase) String() string {
	return likePhaseNames[p]
}

// ErrToggleInFlight 同一活动已有未完成的点赞请求
var ErrToggleInFlight = errors.New("like toggle already in flight")

// ErrNotPending 只有 pending 状态可以结算
var ErrNotPending = errors.New("like toggle is not pending")

// CanBegin 只要不是 pending 都可以发起新请求
func (p LikePhase) CanBegin() bool {
	return p != LikePending
}

// Begin 进入 pending
func (p LikePhase) Begin() (LikePhase, error) {
	if !p.CanBegin() {
		return p, ErrToggleInFlight
	}
	return LikePending, nil
}

// Commit 远程调用成功
func (p LikePhase) Commit() (LikePhase, error) {
	if p != LikePending {
		return p, ErrNotPending
	}
	return LikeCommitted, nil
}

// Rollback 远程调用最终失败
func (p LikePhase) Rollback() (LikePhase, error) {
	if p != LikePending {
		return p, ErrNotPending
	}
	return LikeRolledBack, nil
}

// ==================== 显示值来源 ====================

// LikeSource 当前显示值来自哪里（只在内存中，不持久化）
type LikeSource string

const (
	LikeSourceServer     LikeSource = "server"
	LikeSourceFallback   LikeSource = "local-fallback"
	LikeSourceOptimistic LikeSource = "optimistic-pending"
	LikeSourceDefault    LikeSource = "default" // 没有任何记录，显示未点赞
)

// CampaignLikeState 某个活动当前的点赞显示状态
type CampaignLikeState struct {
	CampaignID string     `json:"campaign_id"`
	Liked      bool       `json:"liked"`
	Source     LikeSource `json:"source"`
	Phase      LikePhase  `json:"-"`
}

// Pending 是否有请求未完成
func (s CampaignLikeState) Pending() bool {
	return s.Phase == LikePending
}

// LikedCampaignsKey 本地兜底存储使用的固定 key
const LikedCampaignsKey = "likedCampaigns"
