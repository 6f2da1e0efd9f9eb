package message

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/logger"
	"github.com/fachebot/wecom-sync-bot/internal/metrics"
	"github.com/fachebot/wecom-sync-bot/internal/uitree"
)

// Reader 双重校验读取当前房间的消息列表
type Reader struct {
	tree       TreeSource
	extractor  *Extractor
	settle     time.Duration
	imageCheck bool
}

func NewReader(tree TreeSource, extractor *Extractor, settle time.Duration, imageCheck bool) *Reader {
	return &Reader{tree: tree, extractor: extractor, settle: settle, imageCheck: imageCheck}
}

// ReadValidated 连续读取两遍，一致才返回，结果按时间从旧到新排列。
// 不一致时无限重试，仅由 ctx 终止。
func (r *Reader) ReadValidated(ctx context.Context, titles []string, kind RoomKind) ([]Record, error) {
	title := strings.Join(titles, ", ")
	logger.Debugf("[Reader] 聊天: %s", title)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		first, err := r.readPass(ctx, titles, kind, false, false)
		if err != nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.settle):
		}

		second, err := r.readPass(ctx, titles, kind, r.imageCheck, true)
		if err != nil {
			return nil, err
		}

		if EqualRecords(first, second) {
			slices.Reverse(second)
			return second, nil
		}

		metrics.ReadMismatches.Inc()
		logger.Warnf("[Reader] 双重校验聊天列表失败, title: %s, attempt: %d, %d != %d",
			title, attempt, len(first), len(second))
	}
}

// readPass 从下往上解析可见消息，即从新到旧
func (r *Reader) readPass(ctx context.Context, titles []string, kind RoomKind, imageCheck, secondPass bool) ([]Record, error) {
	root, err := r.tree.Root(ctx)
	if err != nil {
		return nil, err
	}

	list := uitree.FindFirst(root, 0, uitree.ListView)
	if list == nil {
		logger.Debugf("[Reader] 未找到消息列表")
		return nil, nil
	}

	count := list.ChildCount()
	logger.Tracef("[Reader] 消息条数: %d", count)

	records := make([]Record, 0, count)
	for i := count - 1; i >= 0; i-- {
		item := list.Child(i)
		if item.ChildCount() == 0 {
			continue
		}
		record, err := r.extractor.Extract(ctx, item, titles, kind, imageCheck, secondPass)
		if err != nil {
			return nil, err
		}
		if record.ImageRepeat {
			imageCheck = false
		}
		records = append(records, record)
	}
	return records, nil
}
