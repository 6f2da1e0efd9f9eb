package loop

import (
	"context"
	"errors"
	"strings"

	"github.com/fachebot/wecom-sync-bot/internal/logger"
	"github.com/fachebot/wecom-sync-bot/internal/message"
	"github.com/fachebot/wecom-sync-bot/internal/metrics"
)

// readOpenedRoom 读取刚点击进入的房间，然后回到首页
func (l *Loop) readOpenedRoom(ctx context.Context) error {
	l.setState(StateReadingRoom)
	if err := l.readRoom(ctx); err != nil {
		return err
	}
	if err := l.alive(ctx); err != nil {
		return err
	}
	return l.nav.GoHome(ctx)
}

// readRoom 读取当前房间，失败时等待片刻重试一次
func (l *Loop) readRoom(ctx context.Context) error {
	for attempt := 1; attempt <= 2; attempt++ {
		done, err := l.tryReadRoom(ctx)
		if err != nil || done {
			return err
		}
		if attempt == 1 {
			logger.Debugf("[Loop] 重试获取聊天列表")
			if err = l.sleep(ctx, l.config.Pop()); err != nil {
				return err
			}
		}
	}
	metrics.RoomReads.WithLabelValues("failed").Inc()
	return nil
}

// fullTitles 标题被截断时查询完整名称
func (l *Loop) fullTitles(ctx context.Context, room message.RoomSignature) []string {
	if !room.Kind.IsContact() && !(room.Kind.IsGroup() && l.config.FullGroupName) {
		return room.Titles
	}
	logger.Debugf("[Loop] 标题过长，尝试获取完整名称: %s", strings.Join(room.Titles, ", "))
	full, err := l.dev.FullTitles(ctx, room.Kind)
	if err != nil || len(full) == 0 {
		logger.Warnf("[Loop] 获取完整名称失败: %v", err)
		return room.Titles
	}
	return full
}

func (l *Loop) tryReadRoom(ctx context.Context) (bool, error) {
	room, err := l.dev.Room(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ErrStopped
		}
		logger.Warnf("[Loop] 获取房间信息失败: %v", err)
		return false, nil
	}
	if room.Truncated() {
		room.Titles = l.fullTitles(ctx, room)
	}
	if room.Kind == message.RoomUnknown || len(room.Titles) == 0 {
		logger.Debugf("[Loop] 当前页面不是聊天房间")
		return false, nil
	}

	readCtx, cancel := context.WithTimeout(ctx, l.config.Read())
	defer cancel()
	records, err := l.reader.ReadValidated(readCtx, room.Titles, room.Kind)
	switch {
	case errors.Is(err, message.ErrRoomLeft):
		logger.Infof("[Loop] 已跳转到新加入的群聊，放弃本次读取: %s", strings.Join(room.Titles, ", "))
		return true, nil
	case ctx.Err() != nil:
		return false, ErrStopped
	case err != nil:
		logger.Warnf("[Loop] 读取房间失败 %s: %v", strings.Join(room.Titles, ", "), err)
		return false, nil
	}
	if len(records) == 0 {
		logger.Debugf("[Loop] 未找到聊天消息列表: %s", strings.Join(room.Titles, ", "))
		metrics.RoomReads.WithLabelValues("empty").Inc()
		return false, nil
	}
	return true, l.syncRoom(ctx, room, records)
}

// syncRoom 与最后同步的尾消息比较，上报未同步的部分
func (l *Loop) syncRoom(ctx context.Context, room message.RoomSignature, records []message.Record) error {
	if len(records) == 0 {
		metrics.RoomReads.WithLabelValues("empty").Inc()
		return nil
	}

	title := room.Titles[0]
	last, _, err := l.store.LastSync(ctx, title)
	if err != nil {
		return err
	}

	tail := message.Tail(records)
	unseen := message.Unseen(records, last)
	if len(unseen) == 0 {
		logger.Tracef("[Loop] 房间没有新消息: %s", title)
		metrics.RoomReads.WithLabelValues("unchanged").Inc()
		return nil
	}

	if err = l.reporter.ReportMessages(ctx, room, unseen); err != nil {
		if ctx.Err() != nil {
			return ErrStopped
		}
		logger.Errorf("[Loop] 上报消息失败 %s: %v", title, err)
		metrics.RoomReads.WithLabelValues("failed").Inc()
		return nil
	}

	if err = l.store.SetLastSync(ctx, title, tail); err != nil {
		return err
	}
	logger.Debugf("[Loop] lastSyncMessage: %s: %s", title, tail)

	if size := newestImageSize(records); size > 0 {
		if err = l.store.SetLastImage(ctx, room.Titles, size); err != nil {
			return err
		}
	}

	metrics.RoomReads.WithLabelValues("reported").Inc()
	logger.Infof("[Loop] 同步房间 %s: %d 条新消息", strings.Join(room.Titles, ", "), len(unseen))
	return nil
}

func newestImageSize(records []message.Record) int {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].ImageSize > 0 {
			return records[i].ImageSize
		}
	}
	return 0
}
