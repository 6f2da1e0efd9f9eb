package model

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/store"
)

// 持久化命名空间
const (
	NamespaceLastSync    = "lastSyncMessage"
	NamespaceLastImage   = "lastImage"
	NamespaceNoTip       = "noTipMessage"
	NamespaceNoSync      = "noSyncMessage"
	NamespaceGroupInvite = "groupInvite"
	NamespaceMyInfo      = "myInfo"
	NamespaceDefault     = "default"
)

// SyncStateModel 房间同步去重状态
type SyncStateModel struct {
	kv store.KV
}

func NewSyncStateModel(kv store.KV) *SyncStateModel {
	return &SyncStateModel{kv: kv}
}

// TitleKey 多个标题拼接为一个键
func TitleKey(titles []string) string {
	return strings.Join(titles, ", ")
}

// LastSync 房间最后一次同步的尾消息指纹
func (m *SyncStateModel) LastSync(ctx context.Context, title string) (string, bool, error) {
	return m.kv.Get(ctx, NamespaceLastSync, title)
}

func (m *SyncStateModel) SetLastSync(ctx context.Context, title, fingerprint string) error {
	return m.kv.Put(ctx, NamespaceLastSync, title, fingerprint)
}

// LastImage 房间最后一次上报的图片字节数，未记录返回 0
func (m *SyncStateModel) LastImage(ctx context.Context, titles []string) (int, error) {
	value, ok, err := m.kv.Get(ctx, NamespaceLastImage, TitleKey(titles))
	if err != nil || !ok {
		return 0, err
	}
	size, err := strconv.Atoi(value)
	if err != nil {
		return 0, nil
	}
	return size, nil
}

func (m *SyncStateModel) SetLastImage(ctx context.Context, titles []string, size int) error {
	return m.kv.Put(ctx, NamespaceLastImage, TitleKey(titles), strconv.Itoa(size))
}

// NoTipAt 最后一次处理无提示消息的时间，未记录返回零值
func (m *SyncStateModel) NoTipAt(ctx context.Context, title string) (time.Time, error) {
	value, ok, err := m.kv.Get(ctx, NamespaceNoTip, title)
	if err != nil || !ok {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.Unix(sec, 0), nil
}

func (m *SyncStateModel) MarkNoTip(ctx context.Context, title string, at time.Time) error {
	return m.kv.Put(ctx, NamespaceNoTip, title, strconv.FormatInt(at.Unix(), 10))
}

// NoSync 最后一次处理的不一致指纹
func (m *SyncStateModel) NoSync(ctx context.Context, title string) (string, error) {
	value, _, err := m.kv.Get(ctx, NamespaceNoSync, title)
	return value, err
}

func (m *SyncStateModel) SetNoSync(ctx context.Context, title, fingerprint string) error {
	return m.kv.Put(ctx, NamespaceNoSync, title, fingerprint)
}

// PurgeBefore 清理过期的无提示/不一致处理记录，同步指纹与一次性标记不清理
func (m *SyncStateModel) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for _, ns := range []string{NamespaceNoTip, NamespaceNoSync} {
		n, err := m.kv.Purge(ctx, ns, before)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
