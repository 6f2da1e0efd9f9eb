// Package shape 按消息气泡的渲染结构（文本节点数、图片节点数）推断消息类型。
package shape

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/logger"
	"github.com/fachebot/wecom-sync-bot/internal/uitree"
)

const (
	liveMarker      = "直播中"
	solitaireMarker = "参与接龙"
)

var (
	fileSizePattern = regexp.MustCompile(`^[0-9.]+[BKMG]$`)
	durationPattern = regexp.MustCompile(`^[0-9]+:[0-9]+$`)
)

// Signature 消息气泡的结构特征
type Signature struct {
	Texts             int      // 文本节点数
	Images            int      // 图片节点数
	Labels            []string // 文本节点内容，按遍历顺序，与文本节点一一对应
	FirstTextSiblings int      // 第一个文本节点的父节点子节点数
}

func (s Signature) label(i int) string {
	if i < len(s.Labels) {
		return s.Labels[i]
	}
	return ""
}

// SignatureOf 统计节点子树的结构特征
func SignatureOf(node *uitree.Node) Signature {
	texts := uitree.FindAll(node, uitree.TextView)
	images := uitree.FindAll(node, uitree.ImageView)
	sig := Signature{
		Texts:  len(texts),
		Images: len(images),
		Labels: make([]string, len(texts)),
	}
	for i, tv := range texts {
		sig.Labels[i] = tv.Text
	}
	if len(texts) > 0 {
		sig.FirstTextSiblings = texts[0].Parent().ChildCount()
	}
	return sig
}

// IsFileSize 是否为文件大小，如 2.1M
func IsFileSize(text string) bool {
	return fileSizePattern.MatchString(text)
}

// IsSolitaire 是否为接龙
func IsSolitaire(text string) bool {
	return strings.Contains(text, solitaireMarker)
}

// Classify 结构特征 -> 消息类型，总能返回一个类型
func Classify(sig Signature) ContentType {
	switch {
	case sig.Texts == 1 && sig.Images == 0:
		return PlainText
	case sig.Texts == 1 && sig.Images == 1:
		// 纯文本含链接会被渲染成网页卡片，由调用方区分
		return Link
	case sig.Texts == 0 && sig.Images == 1:
		return Image
	case sig.Texts == 2 && sig.Images == 2:
		if sig.label(0) == liveMarker {
			return ChannelsLive
		}
		if sig.FirstTextSiblings > 3 {
			return Video
		}
		return Office
	case sig.Texts == 3 && sig.Images == 1:
		if IsFileSize(sig.label(1)) {
			return File
		}
		return Link
	case sig.Texts == 3 && sig.Images == 2:
		return MiniProgram
	case sig.Texts == 2 && sig.Images == 0:
		return ChatRecord
	case sig.Texts == 6 && sig.Images == 0:
		return Collection
	case sig.Texts == 2 && sig.Images == 1:
		if IsSolitaire(sig.label(1)) {
			return Solitaire
		}
		if IsFileSize(sig.label(1)) {
			return File
		}
		return Link
	case sig.Texts == 4 && sig.Images == 2:
		return Voice
	case sig.Texts == 5 && sig.Images == 1:
		return Card
	case sig.Texts == 1 && sig.Images == 2:
		if durationPattern.MatchString(sig.label(0)) {
			return Video
		}
		return Location
	case sig.Texts == 3 && sig.Images == 0:
		return Reply
	case sig.Texts == 0 && sig.Images == 0:
		return NotifyRobot
	case sig.Texts == 1 && sig.Images == 3:
		return ChannelsVideo
	}
	logger.Debugf("[Shape] 未识别的消息结构: tv=%d iv=%d", sig.Texts, sig.Images)
	return Unknown
}

// RefreshFunc 重新读取节点子树
type RefreshFunc func(ctx context.Context, node *uitree.Node) (*uitree.Node, error)

// WaitLoaded 等待子树中的加载项消失，超时后返回当前可见的子树
func WaitLoaded(ctx context.Context, node *uitree.Node, refresh RefreshFunc, timeout, interval time.Duration) *uitree.Node {
	deadline := time.Now().Add(timeout)
	for {
		if uitree.FindFirst(node, 0, uitree.ProgressBar) == nil && !node.Is(uitree.ProgressBar) {
			return node
		}
		if time.Now().After(deadline) {
			logger.Warnf("[Shape] 等待加载超时，按当前结构识别")
			return node
		}
		logger.Debugf("[Shape] 发现加载项 等待加载完成...")
		select {
		case <-ctx.Done():
			return node
		case <-time.After(interval):
		}
		if refresh == nil {
			continue
		}
		fresh, err := refresh(ctx, node)
		if err != nil {
			logger.Warnf("[Shape] 刷新节点失败: %v", err)
			return node
		}
		if fresh != nil {
			node = fresh
		}
	}
}

// ClassifyNode 等待加载完成后识别节点的消息类型
func ClassifyNode(ctx context.Context, node *uitree.Node, refresh RefreshFunc, timeout, interval time.Duration) (ContentType, *uitree.Node) {
	if node == nil {
		return Unknown, nil
	}
	node = WaitLoaded(ctx, node, refresh, timeout, interval)
	sig := SignatureOf(node)
	logger.Tracef("[Shape] tvCount: %d ivCount: %d", sig.Texts, sig.Images)
	return Classify(sig), node
}
