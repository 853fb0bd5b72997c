package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"charity_bff_v1/internal/api/dto"
	"charity_bff_v1/internal/model"
	"charity_bff_v1/pkg/charity"
)

// ==================== 外部服务依赖 ====================

// FallbackStore 本地兜底存储（对应浏览器 localStorage）
type FallbackStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// LikeAPIInterface 平台点赞接口
type LikeAPIInterface interface {
	LikeCampaign(ctx context.Context, campaignID string) (*charity.LikeResult, error)
	UnlikeCampaign(ctx context.Context, campaignID string) (*charity.LikeResult, error)
}

// AuthChecker 判断当前登录态是否仍然有效
type AuthChecker interface {
	IsAuthenticated(ctx context.Context) bool
}

// Notifier 异步结果提示
type Notifier interface {
	Notify(viewerID string, n dto.Notice)
}

// ==================== 参数 ====================

const (
	DefaultLikeTimeout    = 10 * time.Second
	DefaultLikeRetryDelay = 250 * time.Millisecond

	likeFailedMessage = "Could not update like. Please try again."
)

// LikeOptions 点赞调和参数
type LikeOptions struct {
	Timeout    time.Duration // 单次远程调用超时
	RetryDelay time.Duration // 未授权重试前的等待
}

func (o LikeOptions) withDefaults() LikeOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultLikeTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultLikeRetryDelay
	}
	return o
}

// ==================== 单用户点赞调和器 ====================

type likeEntry struct {
	phase  model.LikePhase
	liked  bool
	source model.LikeSource
}

// LikeReconciler 单个用户的点赞显示状态
// 显示值优先级：服务端权威值 > 本地兜底值 > false
type LikeReconciler struct {
	viewerID string
	remote   LikeAPIInterface
	store    FallbackStore
	auth     AuthChecker
	notifier Notifier
	log      *zap.Logger
	opts     LikeOptions

	mu       sync.Mutex
	entries  map[string]*likeEntry
	fallback map[string]bool

	wg sync.WaitGroup
}

// NewLikeReconciler 创建调和器，并立即从兜底存储读取已保存的点赞记录
func NewLikeReconciler(
	ctx context.Context,
	viewerID string,
	remote LikeAPIInterface,
	store FallbackStore,
	auth AuthChecker,
	notifier Notifier,
	log *zap.Logger,
	opts LikeOptions,
) *LikeReconciler {
	if log == nil {
		log = zap.NewNop()
	}
	r := &LikeReconciler{
		viewerID: viewerID,
		remote:   remote,
		store:    store,
		auth:     auth,
		notifier: notifier,
		log:      log.With(zap.String("viewer", viewerID)),
		opts:     opts.withDefaults(),
		entries:  make(map[string]*likeEntry),
	}
	r.fallback = r.loadFallback(ctx)
	return r
}

// Displayed 当前显示状态
func (r *LikeReconciler) Displayed(campaignID string) model.CampaignLikeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.displayedLocked(campaignID)
}

func (r *LikeReconciler) displayedLocked(campaignID string) model.CampaignLikeState {
	state := model.CampaignLikeState{CampaignID: campaignID, Source: model.LikeSourceDefault}

	if e, ok := r.entries[campaignID]; ok {
		state.Phase = e.phase
		if e.source != "" {
			state.Liked = e.liked
			state.Source = e.source
			return state
		}
	}
	if v, ok := r.fallback[campaignID]; ok {
		state.Liked = v
		state.Source = model.LikeSourceFallback
	}
	return state
}

// GetDisplayedLiked 带上服务端值（可为空）读取显示值
func (r *LikeReconciler) GetDisplayedLiked(ctx context.Context, campaignID string, serverValue *bool) bool {
	if serverValue != nil {
		r.Observe(ctx, campaignID, *serverValue)
	}
	return r.Displayed(campaignID).Liked
}

// Observe 记录服务端权威值，并清除该活动的兜底记录
// 有未完成的切换请求时忽略，以请求结果为准
func (r *LikeReconciler) Observe(ctx context.Context, campaignID string, liked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryLocked(campaignID)
	if e.phase == model.LikePending {
		return
	}
	e.liked = liked
	e.source = model.LikeSourceServer

	if _, ok := r.fallback[campaignID]; ok {
		delete(r.fallback, campaignID)
		r.persistLocked(ctx)
	}
}

// Toggle 乐观切换点赞状态，远程调用在后台完成
// 同一活动已有请求未完成时返回 model.ErrToggleInFlight，不发起新请求
func (r *LikeReconciler) Toggle(ctx context.Context, campaignID string, currentlyLiked bool) (model.CampaignLikeState, error) {
	r.mu.Lock()
	e := r.entryLocked(campaignID)
	next, err := e.phase.Begin()
	if err != nil {
		state := r.displayedLocked(campaignID)
		r.mu.Unlock()
		return state, err
	}
	e.phase = next
	e.liked = !currentlyLiked
	e.source = model.LikeSourceOptimistic
	r.fallback[campaignID] = !currentlyLiked
	r.persistLocked(ctx)
	state := r.displayedLocked(campaignID)
	r.mu.Unlock()

	// 请求结束后继续执行，保留 token 等 context 值
	bg := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.settle(bg, campaignID, currentlyLiked)
	}()

	return state, nil
}

// Wait 等待所有后台请求结束
func (r *LikeReconciler) Wait() {
	r.wg.Wait()
}

// settle 执行远程调用并结算
func (r *LikeReconciler) settle(ctx context.Context, campaignID string, currentlyLiked bool) {
	res, err := r.send(ctx, campaignID, currentlyLiked)

	// 只有点赞方向在未授权时重试一次
	if err != nil && !currentlyLiked && isUnauthorized(err) && r.auth != nil && r.auth.IsAuthenticated(ctx) {
		r.log.Info("[Like] 未授权，稍后重试一次", zap.String("campaign", campaignID))
		if sleepContext(ctx, r.opts.RetryDelay) {
			res, err = r.send(ctx, campaignID, currentlyLiked)
		}
	}

	if err != nil {
		r.rollback(ctx, campaignID, currentlyLiked, err)
		return
	}
	r.commit(ctx, campaignID, res)
}

func (r *LikeReconciler) send(ctx context.Context, campaignID string, currentlyLiked bool) (*charity.LikeResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	if currentlyLiked {
		return r.remote.UnlikeCampaign(callCtx, campaignID)
	}
	return r.remote.LikeCampaign(callCtx, campaignID)
}

func (r *LikeReconciler) commit(ctx context.Context, campaignID string, res *charity.LikeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryLocked(campaignID)
	e.phase, _ = e.phase.Commit()

	liked, ok := res.AuthoritativeLiked()
	if !ok {
		// 没有权威值：乐观值即为结果，继续由兜底记录承载
		e.source = model.LikeSourceFallback
		return
	}

	e.liked = liked
	e.source = model.LikeSourceServer
	if _, exists := r.fallback[campaignID]; exists {
		delete(r.fallback, campaignID)
		r.persistLocked(ctx)
	}
}

func (r *LikeReconciler) rollback(ctx context.Context, campaignID string, currentlyLiked bool, cause error) {
	r.mu.Lock()
	e := r.entryLocked(campaignID)
	e.phase, _ = e.phase.Rollback()
	e.liked = currentlyLiked
	e.source = model.LikeSourceFallback
	r.fallback[campaignID] = currentlyLiked
	r.persistLocked(ctx)
	r.mu.Unlock()

	r.log.Warn("[Like] 切换失败，已回滚",
		zap.String("campaign", campaignID),
		zap.Bool("restored", currentlyLiked),
		zap.Error(cause),
	)

	if r.notifier != nil {
		r.notifier.Notify(r.viewerID, dto.Notice{
			Level:      dto.NoticeLevelError,
			Title:      "Error",
			Message:    likeFailedMessage,
			CampaignID: campaignID,
		})
	}
}

func (r *LikeReconciler) entryLocked(campaignID string) *likeEntry {
	e, ok := r.entries[campaignID]
	if !ok {
		e = &likeEntry{phase: model.LikeIdle}
		r.entries[campaignID] = e
	}
	return e
}

// ==================== 兜底存储读写 ====================

// loadFallback 读取失败或内容损坏都视为空记录
func (r *LikeReconciler) loadFallback(ctx context.Context) map[string]bool {
	liked := make(map[string]bool)
	if r.store == nil {
		return liked
	}

	raw, ok, err := r.store.Get(ctx, model.LikedCampaignsKey)
	if err != nil {
		r.log.Warn("[Like] 读取兜底记录失败", zap.Error(err))
		return liked
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return liked
	}

	var parsed map[string]bool
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		r.log.Warn("[Like] 兜底记录已损坏，按空处理", zap.Error(err))
		return liked
	}
	for id, v := range parsed {
		liked[id] = v
	}
	return liked
}

// persistLocked 写回兜底记录，失败只记日志
func (r *LikeReconciler) persistLocked(ctx context.Context) {
	if r.store == nil {
		return
	}

	var err error
	if len(r.fallback) == 0 {
		err = r.store.Remove(ctx, model.LikedCampaignsKey)
	} else {
		var raw []byte
		raw, err = json.Marshal(r.fallback)
		if err == nil {
			err = r.store.Set(ctx, model.LikedCampaignsKey, string(raw))
		}
	}
	if err != nil {
		r.log.Warn("[Like] 写入兜底记录失败", zap.Error(err))
	}
}

// ==================== 多用户注册表 ====================

// LikeStoreFactory 按用户创建兜底存储
type LikeStoreFactory func(viewerID string) FallbackStore

// LikeService 为每个用户维护一个调和器
type LikeService struct {
	remote   LikeAPIInterface
	newStore LikeStoreFactory
	auth     AuthChecker
	notifier Notifier
	log      *zap.Logger
	opts     LikeOptions

	mu          sync.Mutex
	reconcilers sync.Map // viewerID -> *LikeReconciler
}

// NewLikeService 创建点赞服务
func NewLikeService(
	remote LikeAPIInterface,
	newStore LikeStoreFactory,
	auth AuthChecker,
	notifier Notifier,
	log *zap.Logger,
	opts LikeOptions,
) *LikeService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LikeService{
		remote:   remote,
		newStore: newStore,
		auth:     auth,
		notifier: notifier,
		log:      log,
		opts:     opts,
	}
}

// For 获取（必要时创建）用户的调和器
func (s *LikeService) For(ctx context.Context, viewerID string) *LikeReconciler {
	if v, ok := s.reconcilers.Load(viewerID); ok {
		return v.(*LikeReconciler)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.reconcilers.Load(viewerID); ok {
		return v.(*LikeReconciler)
	}

	var store FallbackStore
	if s.newStore != nil {
		store = s.newStore(viewerID)
	}
	r := NewLikeReconciler(ctx, viewerID, s.remote, store, s.auth, s.notifier, s.log, s.opts)
	s.reconcilers.Store(viewerID, r)
	return r
}

// Wait 等待所有用户的后台请求结束（优雅停机时调用）
func (s *LikeService) Wait() {
	s.reconcilers.Range(func(_, v interface{}) bool {
		v.(*LikeReconciler).Wait()
		return true
	})
}

// ==================== 工具函数 ====================

func isUnauthorized(err error) bool {
	var apiErr *charity.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Unauthorized()
	}
	return strings.Contains(strings.ToLower(err.Error()), "unauthorized")
}

// sleepContext 等待 d，context 结束时返回 false
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
