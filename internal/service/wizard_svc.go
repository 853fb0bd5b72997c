package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"charity_bff_v1/internal/api/dto"
	"charity_bff_v1/internal/model"
	"charity_bff_v1/pkg/charity"
)

// ProfileAPIInterface 当前用户资料接口
type ProfileAPIInterface interface {
	GetMe(ctx context.Context) (*charity.User, error)
}

// ErrSessionNotFound 会话不存在、已过期或不属于当前用户
var ErrSessionNotFound = errors.New("wizard session not found")

// DefaultWizardSessionTTL 会话空闲多久后被清理
const DefaultWizardSessionTTL = 24 * time.Hour

// untitledDraft 草稿没有标题时的显示名
const untitledDraft = "Untitled Draft"

// wizardSession 一个浏览器标签页中的向导
type wizardSession struct {
	id        string
	ownerID   string
	createdAt time.Time

	mu        sync.Mutex // 同一会话的操作串行执行
	touchedAt time.Time
	flow      *DraftWorkflow
}

// WizardService 管理所有向导会话
type WizardService struct {
	campaigns CampaignAPIInterface
	images    ImageAPIInterface
	profiles  ProfileAPIInterface
	log       *zap.Logger
	ttl       time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*wizardSession
}

// NewWizardService 创建向导服务
func NewWizardService(
	campaigns CampaignAPIInterface,
	images ImageAPIInterface,
	profiles ProfileAPIInterface,
	log *zap.Logger,
	ttl time.Duration,
) *WizardService {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultWizardSessionTTL
	}
	return &WizardService{
		campaigns: campaigns,
		images:    images,
		profiles:  profiles,
		log:       log,
		ttl:       ttl,
		now:       time.Now,
		sessions:  make(map[string]*wizardSession),
	}
}

// ==================== 会话生命周期 ====================

// Start 新建会话，并用当前用户资料预填组织信息
// 资料获取失败不影响创建，只是不预填
func (s *WizardService) Start(ctx context.Context, ownerID string) (*dto.WizardView, error) {
	flow := NewDraftWorkflow(s.campaigns, s.images, s.now)

	if s.profiles != nil {
		user, err := s.profiles.GetMe(ctx)
		if err != nil {
			s.log.Warn("[Wizard] 获取用户资料失败，跳过组织信息预填", zap.String("owner", ownerID), zap.Error(err))
		} else {
			flow.SeedOrganization(user.OrganizationContact())
		}
	}

	now := s.now()
	sess := &wizardSession{
		id:        uuid.NewString(),
		ownerID:   ownerID,
		createdAt: now,
		touchedAt: now,
		flow:      flow,
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.log.Info("[Wizard] 新建会话", zap.String("session", sess.id), zap.String("owner", ownerID))
	return s.buildView(sess), nil
}

// View 读取会话快照
func (s *WizardService) View(ownerID, sessionID string) (*dto.WizardView, error) {
	sess, err := s.lookup(ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.touchedAt = s.now()
	return s.buildView(sess), nil
}

// Do 在会话锁内执行操作，返回操作后的快照（操作失败时同样返回快照）
func (s *WizardService) Do(ownerID, sessionID string, fn func(w *DraftWorkflow) error) (*dto.WizardView, error) {
	sess, err := s.lookup(ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.touchedAt = s.now()
	opErr := fn(sess.flow)
	return s.buildView(sess), opErr
}

// Discard 主动关闭会话
func (s *WizardService) Discard(ownerID, sessionID string) error {
	if _, err := s.lookup(ownerID, sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// SweepIdle 清理空闲超过 TTL 的会话，正在执行操作的会话跳过
func (s *WizardService) SweepIdle() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		idle := sess.touchedAt.Before(cutoff)
		sess.mu.Unlock()

		if idle {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.log.Info("[Wizard] 清理空闲会话", zap.Int("removed", removed), zap.Int("remaining", len(s.sessions)))
	}
	return removed
}

// Count 当前会话数
func (s *WizardService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *WizardService) lookup(ownerID, sessionID string) (*wizardSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok || sess.ownerID != ownerID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// buildView 调用方需持有会话锁
func (s *WizardService) buildView(sess *wizardSession) *dto.WizardView {
	flow := sess.flow
	step := flow.Step()
	errs := flow.Validate()
	if errs == nil {
		errs = []string{}
	}
	images := flow.Images()
	if images == nil {
		images = []charity.UploadedImage{}
	}

	view := &dto.WizardView{
		SessionID:          sess.id,
		DraftID:            flow.DraftID(),
		Step:               int(step),
		StepTitle:          step.Title(),
		Progress:           step.Progress(),
		CanAdvance:         !step.IsLast() && flow.CanAdvance(),
		CanPublish:         step.IsLast() && len(errs) == 0 && !flow.Completed(),
		SaveDraftAvailable: step.IsLast() && len(errs) == 0 && !flow.Completed(),
		ValidationErrors:   errs,
		Fields:             flow.Fields(),
		Images:             images,
		Completed:          flow.Completed(),
	}
	if p := flow.Published(); p != nil {
		view.PublishedID = p.ID
	}
	return view
}

// ==================== 草稿列表 ====================

// Categories 可选分类
func (s *WizardService) Categories() []string {
	return append([]string(nil), model.Categories...)
}

// ListDrafts 当前用户的草稿，按标题筛选并排序
// sort: updated(默认, 新的在前) / created(新的在前) / title(字母序)
func (s *WizardService) ListDrafts(ctx context.Context, query, sortBy string) ([]dto.DraftListItem, error) {
	drafts, err := s.campaigns.GetMyDrafts(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	items := make([]dto.DraftListItem, 0, len(drafts))
	for _, d := range drafts {
		title := d.Title
		if title == "" {
			title = untitledDraft
		}
		if q != "" && !strings.Contains(strings.ToLower(title), q) {
			continue
		}
		items = append(items, dto.DraftListItem{
			ID:        d.ID,
			Title:     d.Title,
			Category:  d.Category,
			Goal:      d.Goal,
			Status:    d.Status,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		})
	}

	switch sortBy {
	case "title":
		sort.SliceStable(items, func(i, j int) bool {
			return strings.ToLower(items[i].Title) < strings.ToLower(items[j].Title)
		})
	case "created":
		sort.SliceStable(items, func(i, j int) bool {
			return parseTimestamp(items[i].CreatedAt).After(parseTimestamp(items[j].CreatedAt))
		})
	default:
		sort.SliceStable(items, func(i, j int) bool {
			return parseTimestamp(items[i].UpdatedAt).After(parseTimestamp(items[j].UpdatedAt))
		})
	}
	return items, nil
}

// DeleteDraft 删除草稿
func (s *WizardService) DeleteDraft(ctx context.Context, draftID string) error {
	if err := s.campaigns.DeleteDraft(ctx, draftID); err != nil {
		return err
	}
	s.log.Info("[Wizard] 删除草稿", zap.String("draft", draftID))
	return nil
}

// parseTimestamp 无法解析的时间排在最后
func parseTimestamp(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
