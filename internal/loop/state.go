package loop

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/fachebot/wecom-sync-bot/internal/metrics"
)

// ErrStopped 主循环被外部停止
var ErrStopped = errors.New("主循环已停止")

// State 主循环状态
type State int32

const (
	StateStopped State = iota
	StateHome
	StateScanningInbox
	StateReadingRoom
	StateReconciling
)

var stateNames = [...]string{"Stopped", "Home", "ScanningInbox", "ReadingRoom", "Reconciling"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	i := slices.Index(stateNames[:], string(text))
	if i < 0 {
		return fmt.Errorf("unknown loop state: %s", text)
	}
	*s = State(i)
	return nil
}

// RunState 运行开关。enabled 表示允许运行，running 表示已有一轮循环在执行
type RunState struct {
	enabled atomic.Bool
	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (r *RunState) Enable() {
	r.enabled.Store(true)
}

func (r *RunState) Enabled() bool {
	return r.enabled.Load()
}

func (r *RunState) Running() bool {
	return r.running.Load()
}

// Stop 清除开关并取消正在执行的循环
func (r *RunState) Stop() {
	r.enabled.Store(false)
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// acquire 保证同一时间最多一轮循环
func (r *RunState) acquire(cancel context.CancelFunc) bool {
	if !r.running.CompareAndSwap(false, true) {
		return false
	}
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	return true
}

func (r *RunState) release() {
	r.mu.Lock()
	r.cancel = nil
	r.mu.Unlock()
	r.running.Store(false)
}

func publishState(s State) {
	for i, name := range stateNames {
		v := 0.0
		if State(i) == s {
			v = 1
		}
		metrics.LoopState.WithLabelValues(name).Set(v)
	}
}
