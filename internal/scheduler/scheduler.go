package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/config"
	"github.com/fachebot/wecom-sync-bot/internal/logger"
	"github.com/fachebot/wecom-sync-bot/internal/loop"
	"github.com/fachebot/wecom-sync-bot/internal/metrics"
	"github.com/robfig/cron/v3"
)

// loopStatus 主循环状态
type loopStatus interface {
	Status() loop.Status
}

// resumer 主循环指令队列
type resumer interface {
	PostResume()
}

// purger 过期去重记录清理
type purger interface {
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler 定时维护任务：主循环看门狗与去重记录清理
type Scheduler struct {
	cron          *cron.Cron
	loop          loopStatus
	resumer       resumer
	purger        purger
	config        *config.Maintenance
	now           func() time.Time
	retryTimes    int
	retryInterval time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.Mutex
}

// locUTC UTC 标准时间（UTC）
var locUTC = time.UTC

func NewScheduler(
	l loopStatus,
	r resumer,
	p purger,
	cfg *config.Maintenance,
) *Scheduler {
	return &Scheduler{
		cron:          cron.New(cron.WithLocation(locUTC)),
		loop:          l,
		resumer:       r,
		purger:        p,
		config:        cfg,
		now:           time.Now,
		retryTimes:    3,
		retryInterval: 60 * time.Second,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	// 注册看门狗任务
	_, err := s.cron.AddFunc(s.config.WatchdogCron, s.checkLoop)
	if err != nil {
		return fmt.Errorf("注册看门狗任务失败: %w", err)
	}

	// 注册清理任务
	_, err = s.cron.AddFunc(s.config.CleanupCron, s.runCleanup)
	if err != nil {
		return fmt.Errorf("注册清理任务失败: %w", err)
	}

	s.cron.Start()
	logger.Infof("[Scheduler] 调度器已启动，看门狗: %s，清理任务: %s", s.config.WatchdogCron, s.config.CleanupCron)
	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Infof("[Scheduler] 调度器已停止")
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// checkLoop 主循环已启用但没有在运行时重新排队
func (s *Scheduler) checkLoop() {
	status := s.loop.Status()
	if !status.Enabled || status.Running {
		return
	}
	logger.Warnf("[Scheduler] 主循环已启用但未运行，重新排队")
	s.resumer.PostResume()
}

// runCleanup 清理过期去重记录（cron 触发）
func (s *Scheduler) runCleanup() {
	ctx := s.context()
	select {
	case <-ctx.Done():
		logger.Infof("[Scheduler] 任务已取消，退出")
		return
	default:
	}

	if err := s.cleanup(ctx); err != nil {
		logger.Errorf("[Scheduler] 清理去重记录失败: %v", err)
	}
}

// cleanup 删除保留期之前的去重记录，失败时重试
func (s *Scheduler) cleanup(ctx context.Context) error {
	before := s.now().In(locUTC).AddDate(0, 0, -s.config.RetentionDays)
	logger.Infof("[Scheduler] 开始清理去重记录，截止时间: %s", before.Format("2006-01-02"))

	var n int64
	var err error
	for attempt := 1; attempt <= s.retryTimes; attempt++ {
		n, err = s.purger.PurgeBefore(ctx, before)
		if err == nil {
			break
		}

		logger.Warnf("[Scheduler] 清理去重记录失败 (第 %d/%d 次): %v", attempt, s.retryTimes, err)
		if attempt < s.retryTimes {
			select {
			case <-ctx.Done():
				return fmt.Errorf("任务已取消")
			case <-time.After(s.retryInterval):
			}
		}
	}
	if err != nil {
		return fmt.Errorf("清理去重记录失败，已重试 %d 次: %w", s.retryTimes, err)
	}

	metrics.PurgedKeys.Add(float64(n))
	logger.Infof("[Scheduler] 已清理 %d 条过期去重记录", n)
	return nil
}
