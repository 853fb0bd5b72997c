package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SessionSweeper 可清理空闲会话的服务
type SessionSweeper interface {
	SweepIdle() int
}

// LimiterPruner 可清理长期未访问 key 的限流器
type LimiterPruner interface {
	Prune(idle time.Duration) int
}

// SessionSweepTask 定时清理空闲向导会话和限流器条目
type SessionSweepTask struct {
	sweeper SessionSweeper
	pruners []LimiterPruner
	idle    time.Duration
	spec    string
	log     *zap.Logger

	Cron *cron.Cron

	mu      sync.Mutex
	running bool
}

// NewSessionSweepTask 创建清理任务，spec 为带秒的 cron 表达式
func NewSessionSweepTask(sweeper SessionSweeper, pruners []LimiterPruner, idle time.Duration, spec string, log *zap.Logger) *SessionSweepTask {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionSweepTask{
		sweeper: sweeper,
		pruners: pruners,
		idle:    idle,
		spec:    spec,
		log:     log,
		Cron:    cron.New(cron.WithSeconds()), // 支持秒级控制
	}
}

// Start 启动定时任务
func (t *SessionSweepTask) Start() error {
	if _, err := t.Cron.AddFunc(t.spec, t.SweepNow); err != nil {
		return fmt.Errorf("无法启动会话清理任务 (%s): %w", t.spec, err)
	}
	t.Cron.Start()
	t.log.Info("[Task] 会话清理任务已启动", zap.String("spec", t.spec))
	return nil
}

// Stop 停止调度并等待正在执行的清理结束
func (t *SessionSweepTask) Stop() {
	<-t.Cron.Stop().Done()
	t.log.Info("[Task] 会话清理任务已停止")
}

// SweepNow 立即执行一次，上一轮未结束时跳过
func (t *SessionSweepTask) SweepNow() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	removed := 0
	if t.sweeper != nil {
		removed = t.sweeper.SweepIdle()
	}
	pruned := 0
	for _, p := range t.pruners {
		pruned += p.Prune(t.idle)
	}

	t.log.Debug("[Cron] 会话清理完成", zap.Int("sessions", removed), zap.Int("limiter_keys", pruned))
}
