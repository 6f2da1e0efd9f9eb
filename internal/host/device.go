// Package host 对接宿主设备：读取 UI 树、执行点击/滑动/返回等动作。
package host

import (
	"context"
	"errors"

	"github.com/fachebot/wecom-sync-bot/internal/message"
	"github.com/fachebot/wecom-sync-bot/internal/uitree"
)

var (
	ErrActionRejected = errors.New("宿主拒绝执行动作")
	ErrNodeGone       = errors.New("节点已不存在")
)

// Device 宿主设备能力
type Device interface {
	Root(ctx context.Context) (*uitree.Node, error)
	Subtree(ctx context.Context, path []int) (*uitree.Node, error)

	Click(ctx context.Context, node *uitree.Node) error
	Tap(ctx context.Context, node *uitree.Node) error
	TapXY(ctx context.Context, x, y float64) error // 屏幕比例坐标 0~1
	Scroll(ctx context.Context, node *uitree.Node, forward bool) (bool, error)
	Back(ctx context.Context) error

	CurrentPage(ctx context.Context) (string, error)
	LaunchApp(ctx context.Context) error
	Toast(ctx context.Context, text string) error

	Room(ctx context.Context) (message.RoomSignature, error)
	FullTitles(ctx context.Context, kind message.RoomKind) ([]string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}
