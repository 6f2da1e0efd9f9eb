package notify

import (
	"fmt"
	"slices"
	"strings"

	"github.com/fachebot/wecom-sync-bot/internal/logger"
	"github.com/fachebot/wecom-sync-bot/internal/loop"
)

const (
	commandStart  = "/start"
	commandStop   = "/stop"
	commandStatus = "/status"
)

// controller 主循环启停
type controller interface {
	StartLoop()
	StopLoopAndGoHome()
}

// statusSource 主循环状态
type statusSource interface {
	Status() loop.Status
}

// Commands 运维人员通过私信下发的指令
type Commands struct {
	ctrl    controller
	status  statusSource
	userIDs []int64
}

func NewCommands(ctrl controller, status statusSource, userIDs []int64) *Commands {
	return &Commands{
		ctrl:    ctrl,
		status:  status,
		userIDs: userIDs,
	}
}

// Handle 处理一条消息，返回回复内容。非指令或发送者无权限时返回 false
func (c *Commands) Handle(userID int64, text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}
	if !slices.Contains(c.userIDs, userID) {
		logger.Warnf("[Notify] 忽略未授权用户的指令: %d %s", userID, fields[0])
		return "", false
	}

	// 群组中的指令可能带有 @botname 后缀
	name, _, _ := strings.Cut(fields[0], "@")
	logger.Infof("[Notify] 收到指令: %s (%d)", name, userID)

	switch name {
	case commandStart:
		c.ctrl.StartLoop()
		return "已启动同步主循环", true
	case commandStop:
		c.ctrl.StopLoopAndGoHome()
		return "已停止同步主循环", true
	case commandStatus:
		return formatStatus(c.status.Status()), true
	default:
		return fmt.Sprintf("未知指令: %s\n可用指令: %s %s %s", name, commandStart, commandStop, commandStatus), true
	}
}

func formatStatus(s loop.Status) string {
	return fmt.Sprintf("<b>同步主循环</b>\n状态: %s\n已启用: %s\n运行中: %s\n轮询次数: %d",
		s.State, yesNo(s.Enabled), yesNo(s.Running), s.Polls)
}

func yesNo(v bool) string {
	if v {
		return "是"
	}
	return "否"
}
