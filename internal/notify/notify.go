// Package notify 向运维人员发送告警，并处理运维人员下发的指令。
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fachebot/wecom-sync-bot/internal/config"
	"github.com/fachebot/wecom-sync-bot/internal/logger"
)

const (
	MaxMessageLength = 5000 // Telegram 消息最大长度
)

// Sender 发送文本消息的通道
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type Notifier struct {
	sender  Sender
	userIDs []int64
}

// NewNotifier sender 为 nil 时只记录日志
func NewNotifier(sender Sender, c *config.TelegramApp) *Notifier {
	return &Notifier{
		sender:  sender,
		userIDs: c.NotifyUserIds,
	}
}

// Alert 私信通知所有运维用户，单个用户发送失败不影响其他用户
func (n *Notifier) Alert(ctx context.Context, content string) error {
	if content == "" {
		return nil
	}
	if n.sender == nil {
		logger.Warnf("[Notify] 未启用 Telegram，告警未发送: %s", content)
		return nil
	}
	if len(n.userIDs) == 0 {
		logger.Warnf("[Notify] 未配置私信通知用户ID")
		return nil
	}

	messages := splitMessage(content)

	var errs []error
	for _, userID := range n.userIDs {
		if err := n.sendAll(ctx, userID, messages); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Infof("[Notify] 已发送告警给用户 %d", userID)
	}
	return errors.Join(errs...)
}

func (n *Notifier) sendAll(ctx context.Context, userID int64, messages []string) error {
	for _, msg := range messages {
		if err := n.sender.SendText(ctx, userID, msg); err != nil {
			return fmt.Errorf("发送私信给用户 %d 失败: %w", userID, err)
		}
	}
	return nil
}

// splitMessage 将消息按长度拆分为多条
func splitMessage(content string) []string {
	if len(content) <= MaxMessageLength {
		return []string{content}
	}

	// 按段落拆分
	paragraphs := strings.Split(content, "\n\n")
	if len(paragraphs) == 1 {
		paragraphs = strings.Split(content, "\n")
	}

	messages := make([]string, 0)
	currentMsg := ""

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		testMsg := currentMsg
		if testMsg != "" {
			testMsg += "\n\n"
		}
		testMsg += para

		if len(testMsg) <= MaxMessageLength {
			currentMsg = testMsg
			continue
		}

		if currentMsg != "" {
			messages = append(messages, currentMsg)
			currentMsg = ""
		}
		if len(para) <= MaxMessageLength {
			currentMsg = para
			continue
		}

		// 单个段落超长，按字符切分，避免截断多字节字符
		for _, chunk := range splitRunes(para, MaxMessageLength) {
			messages = append(messages, chunk)
		}
	}

	if currentMsg != "" {
		messages = append(messages, currentMsg)
	}
	return messages
}

// splitRunes 按字节上限切分，切分点落在字符边界
func splitRunes(s string, limit int) []string {
	var chunks []string
	for len(s) > limit {
		cut := 0
		for i := range s {
			if i > limit {
				break
			}
			cut = i
		}
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}
