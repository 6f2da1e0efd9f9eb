package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/config"
	"github.com/fachebot/wecom-sync-bot/internal/loop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeLoop struct {
	status loop.Status
}

func (l *fakeLoop) Status() loop.Status { return l.status }

type fakeResumer struct {
	posted int
}

func (r *fakeResumer) PostResume() { r.posted++ }

type mockPurger struct {
	mock.Mock
}

func (m *mockPurger) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(before)
	return args.Get(0).(int64), args.Error(1)
}

func newTestScheduler(l *fakeLoop, r *fakeResumer, p *mockPurger) *Scheduler {
	s := NewScheduler(l, r, p, &config.Maintenance{
		WatchdogCron:  "* * * * *",
		CleanupCron:   "0 4 * * *",
		RetentionDays: 30,
	})
	s.now = func() time.Time { return time.Date(2024, 3, 31, 4, 0, 0, 0, time.UTC) }
	s.retryInterval = time.Millisecond
	return s
}

func TestCheckLoop(t *testing.T) {
	testCases := []struct {
		name    string
		status  loop.Status
		resumed bool
	}{
		{"已启用且在运行", loop.Status{Enabled: true, Running: true}, false},
		{"已启用但未运行", loop.Status{Enabled: true}, true},
		{"未启用", loop.Status{}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := &fakeResumer{}
			s := newTestScheduler(&fakeLoop{status: tc.status}, r, &mockPurger{})
			s.checkLoop()
			assert.Equal(t, tc.resumed, r.posted == 1)
		})
	}
}

func TestCleanup(t *testing.T) {
	p := &mockPurger{}
	before := time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC)
	p.On("PurgeBefore", before).Return(int64(0), errors.New("database is locked")).Once()
	p.On("PurgeBefore", before).Return(int64(12), nil).Once()

	s := newTestScheduler(&fakeLoop{}, &fakeResumer{}, p)
	require.NoError(t, s.cleanup(context.Background()))
	p.AssertNumberOfCalls(t, "PurgeBefore", 2)
}

func TestCleanup_GiveUp(t *testing.T) {
	p := &mockPurger{}
	p.On("PurgeBefore", mock.Anything).Return(int64(0), errors.New("connection refused"))

	s := newTestScheduler(&fakeLoop{}, &fakeResumer{}, p)
	err := s.cleanup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "已重试 3 次")
	p.AssertNumberOfCalls(t, "PurgeBefore", 3)
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(&fakeLoop{}, &fakeResumer{}, &mockPurger{})
	require.NoError(t, s.Start())
	s.Stop()

	bad := newTestScheduler(&fakeLoop{}, &fakeResumer{}, &mockPurger{})
	bad.config.WatchdogCron = "not a cron"
	assert.Error(t, bad.Start())
}
