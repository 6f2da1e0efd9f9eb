// Package report 把解析好的消息批次推送给远端控制器。
package report

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/config"
	"github.com/fachebot/wecom-sync-bot/internal/logger"
	"github.com/fachebot/wecom-sync-bot/internal/message"
	"github.com/fachebot/wecom-sync-bot/internal/metrics"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	TypeReceiveMessageList = "RECEIVE_MESSAGE_LIST"
	TypeGetFriendInfo      = "GET_FRIEND_INFO"
)

// MessageList 房间消息批次
type MessageList struct {
	Type     string           `json:"type"`
	RoomKind message.RoomKind `json:"roomKind"`
	Titles   []string         `json:"titles"`
	Messages []message.Record `json:"messages"`
}

// Friend 新通过的好友
type Friend struct {
	Name string `json:"name"`
	Note string `json:"note,omitempty"`
}

// FriendInfo 好友请求处理结果
type FriendInfo struct {
	Type    string   `json:"type"`
	Friends []Friend `json:"friends"`
}

// Reporter 通过 HTTP 推送上报
type Reporter struct {
	config        *config.Report
	client        *http.Client
	sessionID     string
	retryTimes    int
	retryInterval time.Duration
}

// NewReporter transport 为 nil 时使用默认传输
func NewReporter(c *config.Report, transport *http.Transport) *Reporter {
	client := &http.Client{Timeout: 30 * time.Second}
	if transport != nil {
		client.Transport = transport
	}
	retryTimes := c.RetryTimes
	if retryTimes <= 0 {
		retryTimes = 3
	}
	retryInterval := time.Duration(c.RetryInterval) * time.Second
	if retryInterval <= 0 {
		retryInterval = 2 * time.Second
	}

	return &Reporter{
		config:        c,
		client:        client,
		sessionID:     uuid.NewString(),
		retryTimes:    retryTimes,
		retryInterval: retryInterval,
	}
}

// SessionID 本次进程的会话ID
func (r *Reporter) SessionID() string {
	return r.sessionID
}

// ReportMessages 上报房间消息
func (r *Reporter) ReportMessages(ctx context.Context, room message.RoomSignature, records []message.Record) error {
	if len(records) == 0 {
		return nil
	}
	payload := MessageList{
		Type:     TypeReceiveMessageList,
		RoomKind: room.Kind,
		Titles:   room.Titles,
		Messages: records,
	}
	if err := r.send(ctx, payload.Type, payload); err != nil {
		return err
	}
	metrics.ReportedMessages.Add(float64(len(records)))
	return nil
}

// ReportFriends 上报新好友
func (r *Reporter) ReportFriends(ctx context.Context, friends []Friend) error {
	if len(friends) == 0 {
		return nil
	}
	return r.send(ctx, TypeGetFriendInfo, FriendInfo{Type: TypeGetFriendInfo, Friends: friends})
}

func (r *Reporter) send(ctx context.Context, typ string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化上报内容失败: %w", err)
	}

	retryTimes, retryInterval := r.retryTimes, r.retryInterval
	batchID := ulid.MustNew(ulid.Now(), rand.Reader).String()
	for attempt := 1; attempt <= retryTimes; attempt++ {
		start := time.Now()
		err = r.post(ctx, batchID, body)
		metrics.ReportLatency.Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.Reports.WithLabelValues(typ, "ok").Inc()
			logger.Debugf("[Reporter] 上报成功, type: %s, batch: %s", typ, batchID)
			return nil
		}

		logger.Warnf("[Reporter] 上报失败 (第 %d/%d 次), type: %s, batch: %s, %v", attempt, retryTimes, typ, batchID, err)
		if attempt < retryTimes {
			select {
			case <-ctx.Done():
				metrics.Reports.WithLabelValues(typ, "cancelled").Inc()
				return ctx.Err()
			case <-time.After(retryInterval):
			}
		}
	}

	metrics.Reports.WithLabelValues(typ, "failed").Inc()
	return fmt.Errorf("上报失败，已重试 %d 次: %w", retryTimes, err)
}

func (r *Reporter) post(ctx context.Context, batchID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Batch-Id", batchID)
	req.Header.Set("X-Session-Id", r.sessionID)
	if r.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.Token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("控制器返回异常状态: %d %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
