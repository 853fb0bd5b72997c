package task

import (
	"time"

	"go.uber.org/zap"
)

// ==================== TaskManager 后台任务管理器 ====================

// TaskManager 统一管理后台定时任务
// 管理范围：向导会话清理、限流器条目清理
type TaskManager struct {
	sweepTask *SessionSweepTask
	log       *zap.Logger
}

// TaskManagerDeps 任务管理器依赖
type TaskManagerDeps struct {
	Wizard   SessionSweeper
	Limiters []LimiterPruner
	Log      *zap.Logger
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	SweepEnabled bool
	SweepSpec    string        // 带秒的 cron 表达式
	LimiterIdle  time.Duration // 限流器条目空闲多久后清理
}

// DefaultConfig 默认配置
func DefaultConfig() *TaskManagerConfig {
	return &TaskManagerConfig{
		SweepEnabled: true,
		SweepSpec:    "0 */10 * * * *", // 每 10 分钟
		LimiterIdle:  30 * time.Minute,
	}
}

// NewTaskManager 创建任务管理器
func NewTaskManager(deps *TaskManagerDeps, cfg *TaskManagerConfig) *TaskManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	tm := &TaskManager{log: log}

	if cfg.SweepEnabled && deps.Wizard != nil {
		tm.sweepTask = NewSessionSweepTask(deps.Wizard, deps.Limiters, cfg.LimiterIdle, cfg.SweepSpec, log)
	}

	return tm
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务
func (tm *TaskManager) Start() error {
	tm.log.Info("[TaskManager] 正在启动后台任务...")

	if tm.sweepTask != nil {
		if err := tm.sweepTask.Start(); err != nil {
			return err
		}
	}

	tm.log.Info("[TaskManager] 后台任务已全部启动")
	return nil
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	tm.log.Info("[TaskManager] 正在停止后台任务...")

	if tm.sweepTask != nil {
		tm.sweepTask.Stop()
	}

	tm.log.Info("[TaskManager] 后台任务已全部停止")
}

// ==================== 手动触发接口 ====================

// TriggerSweep 立即清理一次
func (tm *TaskManager) TriggerSweep() error {
	if tm.sweepTask == nil {
		return ErrTaskDisabled
	}
	tm.sweepTask.SweepNow()
	return nil
}

// ==================== 状态查询 ====================

// Status 获取任务状态
func (tm *TaskManager) Status() map[string]bool {
	return map[string]bool{
		"session_sweep": tm.sweepTask != nil,
	}
}

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrTaskDisabled TaskError = "task is disabled"
)
