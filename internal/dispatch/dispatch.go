// Package dispatch 串行执行主循环的启动/停止/恢复指令。
package dispatch

import (
	"context"

	"github.com/fachebot/wecom-sync-bot/internal/logger"
)

type command int

const (
	cmdStart command = iota
	cmdGoHome
)

func (c command) String() string {
	switch c {
	case cmdStart:
		return "start"
	case cmdGoHome:
		return "go-home"
	default:
		return "unknown"
	}
}

// runner 主循环
type runner interface {
	Enable()
	Stop()
	Run(ctx context.Context)
	GoHome(ctx context.Context) error
}

// Dispatcher 单消费者指令队列，同一时间只执行一条指令
type Dispatcher struct {
	runner   runner
	commands chan command
	resume   chan struct{}
}

func New(r runner) *Dispatcher {
	return &Dispatcher{
		runner:   r,
		commands: make(chan command, 16),
		resume:   make(chan struct{}, 1),
	}
}

func (d *Dispatcher) enqueue(c command) {
	select {
	case d.commands <- c:
	default:
		logger.Warnf("[Dispatch] 指令队列已满，丢弃指令: %s", c)
	}
}

// StartLoop 启动主循环，重复调用无副作用
func (d *Dispatcher) StartLoop() {
	d.runner.Enable()
	d.enqueue(cmdStart)
}

// StopLoopAndGoHome 立即停止主循环，然后回到首页
func (d *Dispatcher) StopLoopAndGoHome() {
	d.runner.Stop()
	d.ClearPending()
	d.enqueue(cmdGoHome)
}

// PostResume 请求恢复主循环，未处理的恢复请求最多保留一个
func (d *Dispatcher) PostResume() {
	select {
	case d.resume <- struct{}{}:
	default:
	}
}

// ClearPending 丢弃未处理的恢复请求
func (d *Dispatcher) ClearPending() {
	select {
	case <-d.resume:
	default:
	}
}

// Serve 消费指令直到 ctx 结束
func (d *Dispatcher) Serve(ctx context.Context) {
	logger.Infof("[Dispatch] 指令队列已启动")
	for {
		select {
		case <-ctx.Done():
			logger.Infof("[Dispatch] 指令队列已停止")
			return
		case c := <-d.commands:
			d.handle(ctx, c)
		case <-d.resume:
			logger.Debugf("[Dispatch] 恢复主循环")
			d.runner.Run(ctx)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, c command) {
	logger.Debugf("[Dispatch] 执行指令: %s", c)
	switch c {
	case cmdStart:
		d.runner.Run(ctx)
	case cmdGoHome:
		if err := d.runner.GoHome(ctx); err != nil {
			logger.Warnf("[Dispatch] 回到首页失败: %v", err)
		}
	}
}
