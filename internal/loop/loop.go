// Package loop 是房间同步主循环：轮询会话列表，决定读取哪个房间，去重后上报。
package loop

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/config"
	"github.com/fachebot/wecom-sync-bot/internal/host"
	"github.com/fachebot/wecom-sync-bot/internal/logger"
	"github.com/fachebot/wecom-sync-bot/internal/message"
	"github.com/fachebot/wecom-sync-bot/internal/metrics"
	"github.com/fachebot/wecom-sync-bot/internal/report"
)

const (
	realNameNotice = "账号实名前请先关闭同步主功能！"
	riskNotice     = "环境监测异常，请勿使用本应用！"
)

// roomReader 双重校验读取房间消息
type roomReader interface {
	ReadValidated(ctx context.Context, titles []string, kind message.RoomKind) ([]message.Record, error)
}

// reportSink 上报通道
type reportSink interface {
	ReportMessages(ctx context.Context, room message.RoomSignature, records []message.Record) error
	ReportFriends(ctx context.Context, friends []report.Friend) error
}

// syncStore 去重状态
type syncStore interface {
	LastSync(ctx context.Context, title string) (string, bool, error)
	SetLastSync(ctx context.Context, title, fingerprint string) error
	SetLastImage(ctx context.Context, titles []string, size int) error
	NoTipAt(ctx context.Context, title string) (time.Time, error)
	MarkNoTip(ctx context.Context, title string, at time.Time) error
	NoSync(ctx context.Context, title string) (string, error)
	SetNoSync(ctx context.Context, title, fingerprint string) error
}

// complianceFlags 账号安全开关
type complianceFlags interface {
	RealName(ctx context.Context) (bool, error)
	Risk(ctx context.Context) (bool, error)
}

// Alerter 向运维人员发送告警
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Resumer 主循环的指令队列
type Resumer interface {
	ClearPending()
	PostResume()
}

// Loop 房间同步主循环
type Loop struct {
	config   *config.Loop
	nav      *host.Navigator
	dev      host.Device
	reader   roomReader
	reporter reportSink
	store    syncStore
	flags    complianceFlags
	alerter  Alerter
	resumer  Resumer

	run   RunState
	state atomic.Int32
	polls atomic.Int64
	now   func() time.Time

	tipPatterns    []string
	recentPatterns []string
}

func New(
	c *config.Loop,
	nav *host.Navigator,
	reader roomReader,
	reporter reportSink,
	store syncStore,
	flags complianceFlags,
	alerter Alerter,
) *Loop {
	l := &Loop{
		config:         c,
		nav:            nav,
		dev:            nav.Device(),
		reader:         reader,
		reporter:       reporter,
		store:          store,
		flags:          flags,
		alerter:        alerter,
		now:            time.Now,
		tipPatterns:    c.TipPatterns,
		recentPatterns: c.RecentPatterns,
	}
	publishState(StateStopped)
	return l
}

// SetResumer 设置异常恢复后用于重新排队的指令队列
func (l *Loop) SetResumer(r Resumer) {
	l.resumer = r
}

// Enable 允许主循环运行
func (l *Loop) Enable() {
	l.run.Enable()
}

// Stop 停止主循环，正在执行的阻塞步骤会被取消
func (l *Loop) Stop() {
	l.run.Stop()
}

// Status 主循环状态
type Status struct {
	State   State `json:"state"`
	Enabled bool  `json:"enabled"`
	Running bool  `json:"running"`
	Polls   int64 `json:"polls"`
}

func (l *Loop) Status() Status {
	return Status{
		State:   l.State(),
		Enabled: l.run.Enabled(),
		Running: l.run.Running(),
		Polls:   l.polls.Load(),
	}
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	if State(l.state.Swap(int32(s))) != s {
		logger.Tracef("[Loop] 状态切换: %s", s)
		publishState(s)
	}
}

// GoHome 回到首页
func (l *Loop) GoHome(ctx context.Context) error {
	return l.nav.GoHome(ctx)
}

// Run 执行主循环直到被停止。异常时等待恢复间隔后重新排队，不会退出进程
func (l *Loop) Run(parent context.Context) {
	if !l.run.Enabled() {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	if !l.run.acquire(cancel) {
		logger.Debugf("[Loop] 主循环已在运行")
		return
	}
	defer func() {
		l.run.release()
		l.setState(StateStopped)
	}()

	logger.Infof("[Loop] 主循环已启动")
	err := l.safeLoop(ctx)
	if err == nil || errors.Is(err, ErrStopped) || ctx.Err() != nil {
		logger.Infof("[Loop] 主循环已停止")
		return
	}

	metrics.LoopFaults.Inc()
	logger.Errorf("[Loop] 主循环异常: %v", err)
	if host.Sleep(ctx, l.config.Recovery()) != nil || !l.run.Enabled() {
		logger.Infof("[Loop] 恢复等待期间主循环已停止")
		return
	}
	if l.resumer != nil {
		l.resumer.ClearPending()
		l.resumer.PostResume()
	}
}

func (l *Loop) safeLoop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	for {
		if err = l.poll(ctx); err != nil {
			return err
		}
	}
}

// alive 检查开关与取消信号
func (l *Loop) alive(ctx context.Context) error {
	if !l.run.Enabled() || ctx.Err() != nil {
		return ErrStopped
	}
	return nil
}

// step 执行一个阻塞步骤，执行前后都检查是否已停止
func (l *Loop) step(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.alive(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			return ErrStopped
		}
		return err
	}
	return l.alive(ctx)
}

// sleep 可被停止打断的等待
func (l *Loop) sleep(ctx context.Context, d time.Duration) error {
	if err := host.Sleep(ctx, d); err != nil {
		return ErrStopped
	}
	return l.alive(ctx)
}

// poll 一次完整的轮询
func (l *Loop) poll(ctx context.Context) error {
	l.setState(StateHome)
	var proceed bool
	err := l.step(ctx, func(ctx context.Context) (err error) {
		proceed, err = l.home(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if proceed {
		l.setState(StateScanningInbox)
		polls := l.polls.Add(1)
		metrics.LoopPolls.Inc()

		var opened bool
		err = l.step(ctx, func(ctx context.Context) (err error) {
			opened, err = l.scanInbox(ctx)
			return err
		})
		if err != nil {
			return err
		}

		if !opened && l.config.ReconcileEvery > 0 && polls%int64(l.config.ReconcileEvery) == 0 {
			l.setState(StateReconciling)
			err = l.step(ctx, func(ctx context.Context) (err error) {
				opened, err = l.reconcile(ctx)
				return err
			})
			if err != nil {
				return err
			}
		}

		if opened {
			if err = l.step(ctx, l.readOpenedRoom); err != nil {
				return err
			}
		}

		if l.config.FriendRequest {
			if err = l.step(ctx, l.acceptFriends); err != nil {
				return err
			}
		}
	}

	return l.sleep(ctx, l.config.Poll())
}

// home 首页处理，返回 false 表示本轮不扫描会话列表
func (l *Loop) home(ctx context.Context) (bool, error) {
	atHome, err := l.nav.AtHome(ctx)
	if err != nil {
		return false, err
	}
	if !atHome {
		logger.Debugf("[Loop] 当前不在首页，读取当前房间")
		l.setState(StateReadingRoom)
		if err = l.readRoom(ctx); err != nil {
			return false, err
		}
		if err = l.alive(ctx); err != nil {
			return false, err
		}
		if err = l.nav.GoHome(ctx); err != nil {
			return false, err
		}
		l.setState(StateHome)
	}
	return l.checkCompliance(ctx)
}

// checkCompliance 账号实名与环境检测
func (l *Loop) checkCompliance(ctx context.Context) (bool, error) {
	realName, err := l.flags.RealName(ctx)
	if err != nil {
		return false, err
	}
	risk, err := l.flags.Risk(ctx)
	if err != nil {
		return false, err
	}

	var notice string
	switch {
	case !realName:
		notice = realNameNotice
	case risk:
		notice = riskNotice
	default:
		return true, nil
	}

	metrics.ComplianceHalts.Inc()
	logger.Errorf("[Loop] %s", notice)
	if err = l.dev.Toast(ctx, notice); err != nil {
		logger.Warnf("[Loop] 显示提示失败: %v", err)
	}
	if l.alerter != nil {
		if err = l.alerter.Alert(ctx, notice); err != nil {
			logger.Warnf("[Loop] 发送告警失败: %v", err)
		}
	}
	if err = l.dev.LaunchApp(ctx); err != nil {
		logger.Warnf("[Loop] 打开应用失败: %v", err)
	}
	return false, l.sleep(ctx, l.config.Long())
}

func matchAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

var badgePattern = regexp.MustCompile(`^[0-9]+$`)
