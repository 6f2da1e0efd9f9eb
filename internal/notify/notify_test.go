package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/fachebot/wecom-sync-bot/internal/config"
	"github.com/fachebot/wecom-sync-bot/internal/loop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	chatID int64
	text   string
}

type fakeSender struct {
	sent []sent
	fail map[int64]error
}

func (s *fakeSender) SendText(ctx context.Context, chatID int64, text string) error {
	if err := s.fail[chatID]; err != nil {
		return err
	}
	s.sent = append(s.sent, sent{chatID, text})
	return nil
}

func TestAlert(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, &config.TelegramApp{NotifyUserIds: []int64{1001, 1002}})

	require.NoError(t, n.Alert(context.Background(), "环境监测异常，请勿使用本应用！"))
	assert.Equal(t, []sent{
		{1001, "环境监测异常，请勿使用本应用！"},
		{1002, "环境监测异常，请勿使用本应用！"},
	}, sender.sent)

	require.NoError(t, n.Alert(context.Background(), ""))
	assert.Len(t, sender.sent, 2)
}

func TestAlert_PartialFailure(t *testing.T) {
	sender := &fakeSender{fail: map[int64]error{1001: errors.New("chat not found")}}
	n := NewNotifier(sender, &config.TelegramApp{NotifyUserIds: []int64{1001, 1002}})

	err := n.Alert(context.Background(), "告警")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1001")
	assert.Equal(t, []sent{{1002, "告警"}}, sender.sent)
}

func TestAlert_Disabled(t *testing.T) {
	n := NewNotifier(nil, &config.TelegramApp{NotifyUserIds: []int64{1001}})
	assert.NoError(t, n.Alert(context.Background(), "告警"))
}

func TestSplitMessage(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		parts   int
	}{
		{"短消息", "hello", 1},
		{"按段落拆分", strings.Repeat("a", 3000) + "\n\n" + strings.Repeat("b", 3000), 2},
		{"按行拆分", strings.Repeat("a", 3000) + "\n" + strings.Repeat("b", 3000), 2},
		{"超长段落", strings.Repeat("同步", 2000), 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parts := splitMessage(tc.content)
			assert.Len(t, parts, tc.parts)
			for _, part := range parts {
				assert.LessOrEqual(t, len(part), MaxMessageLength)
				assert.True(t, utf8.ValidString(part))
			}
		})
	}
}

type fakeController struct {
	starts, stops int
}

func (c *fakeController) StartLoop()         { c.starts++ }
func (c *fakeController) StopLoopAndGoHome() { c.stops++ }

type fakeStatus loop.Status

func (s fakeStatus) Status() loop.Status { return loop.Status(s) }

func TestCommands(t *testing.T) {
	ctrl := &fakeController{}
	status := fakeStatus{State: loop.StateScanningInbox, Enabled: true, Running: true, Polls: 42}
	c := NewCommands(ctrl, status, []int64{1001})

	reply, ok := c.Handle(1001, "/start")
	require.True(t, ok)
	assert.Equal(t, "已启动同步主循环", reply)
	assert.Equal(t, 1, ctrl.starts)

	reply, ok = c.Handle(1001, "/stop@wecom_sync_bot")
	require.True(t, ok)
	assert.Equal(t, "已停止同步主循环", reply)
	assert.Equal(t, 1, ctrl.stops)

	reply, ok = c.Handle(1001, " /status ")
	require.True(t, ok)
	assert.Contains(t, reply, "ScanningInbox")
	assert.Contains(t, reply, "轮询次数: 42")

	reply, ok = c.Handle(1001, "/help")
	require.True(t, ok)
	assert.Contains(t, reply, "未知指令")

	_, ok = c.Handle(1001, "你好")
	assert.False(t, ok)

	_, ok = c.Handle(2002, "/start")
	assert.False(t, ok)
	assert.Equal(t, 1, ctrl.starts, "未授权用户不能启动")
}
