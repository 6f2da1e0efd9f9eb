package host

import (
	"context"
	"strings"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/config"
	"github.com/fachebot/wecom-sync-bot/internal/logger"
	"github.com/fachebot/wecom-sync-bot/internal/message"
	"github.com/fachebot/wecom-sync-bot/internal/uitree"
)

const findRetryTimes = 3

// 群邀请落地页按钮
const (
	buttonGotIt     = "我知道了"
	buttonJoinGroup = "加入群聊"
	buttonAccepted  = "你已接受"
	buttonExpired   = "二维码已失效"
)

var inviteButtons = []string{
	buttonGotIt,
	buttonJoinGroup,
	"你已接受过此邀请，无法再次加入",
	"二维码已失效，无法加入群聊",
	"你已接受邀请",
}

// Navigator 组合设备动作，带等待与有限重试
type Navigator struct {
	dev  Device
	cfg  config.Host
	pop  time.Duration
	page time.Duration
	long time.Duration
}

func NewNavigator(dev Device, c config.Host, loop config.Loop) *Navigator {
	return &Navigator{
		dev:  dev,
		cfg:  c,
		pop:  loop.Pop(),
		page: loop.Page(),
		long: loop.Long(),
	}
}

func (n *Navigator) Device() Device {
	return n.dev
}

// Sleep 可被 ctx 打断的等待
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func pageIs(current, page string) bool {
	return page != "" && (current == page || strings.HasSuffix(current, "."+page))
}

// IsPage 当前是否处于指定页面
func (n *Navigator) IsPage(ctx context.Context, page string) (bool, error) {
	current, err := n.dev.CurrentPage(ctx)
	if err != nil {
		return false, err
	}
	return pageIs(current, page), nil
}

// WaitPage 等待进入指定页面
func (n *Navigator) WaitPage(ctx context.Context, page string, timeout time.Duration) (bool, error) {
	interval := n.pop / 5
	if interval <= 0 {
		interval = time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		ok, err := n.IsPage(ctx, page)
		if err != nil || ok {
			return ok, err
		}
		if time.Now().After(deadline) {
			logger.Debugf("[Navigator] 等待页面超时: %s", page)
			return false, nil
		}
		if err = Sleep(ctx, interval); err != nil {
			return false, err
		}
	}
}

// AtHome 是否位于首页
func (n *Navigator) AtHome(ctx context.Context) (bool, error) {
	return n.IsPage(ctx, n.cfg.HomePage)
}

// GoHome 连续返回直到首页，失败则重新打开应用
func (n *Navigator) GoHome(ctx context.Context) error {
	for i := 0; i < 5; i++ {
		home, err := n.AtHome(ctx)
		if err != nil {
			return err
		}
		if home {
			return nil
		}
		if err = n.dev.Back(ctx); err != nil {
			return err
		}
		if err = Sleep(ctx, n.pop/2); err != nil {
			return err
		}
	}

	logger.Warnf("[Navigator] 无法返回首页，重新打开应用")
	if err := n.dev.LaunchApp(ctx); err != nil {
		return err
	}
	return Sleep(ctx, n.page)
}

// FindText 在当前界面查找文本，最多重试 3 次，找不到返回 nil
func (n *Navigator) FindText(ctx context.Context, exact bool, texts ...string) (*uitree.Node, error) {
	for i := 0; i < findRetryTimes; i++ {
		root, err := n.dev.Root(ctx)
		if err != nil {
			return nil, err
		}
		if node := uitree.FindOneByText(root, exact, texts...); node != nil {
			return node, nil
		}
		if err = Sleep(ctx, n.pop/3); err != nil {
			return nil, err
		}
	}
	logger.Debugf("[Navigator] 未找到文本: %v", texts)
	return nil, nil
}

// ClickText 查找并点击文本
func (n *Navigator) ClickText(ctx context.Context, exact bool, texts ...string) (bool, error) {
	node, err := n.FindText(ctx, exact, texts...)
	if err != nil || node == nil {
		return false, err
	}
	if err = n.dev.Click(ctx, node); err != nil {
		return false, err
	}
	return true, Sleep(ctx, n.pop)
}

// OpenImage 打开图片预览
func (n *Navigator) OpenImage(ctx context.Context, node *uitree.Node) error {
	if err := n.dev.Click(ctx, node); err != nil {
		return err
	}
	_, err := n.WaitPage(ctx, n.cfg.ImageViewerPage, n.page)
	return err
}

func (n *Navigator) Capture(ctx context.Context) ([]byte, error) {
	return n.dev.Screenshot(ctx)
}

// CloseImage 点击屏幕顶部关闭预览，最多 3 次
func (n *Navigator) CloseImage(ctx context.Context) error {
	for retry := 0; retry < 3; retry++ {
		viewing, err := n.IsPage(ctx, n.cfg.ImageViewerPage)
		if err != nil || !viewing {
			return err
		}
		if err = n.dev.TapXY(ctx, 0.5, 0.05); err != nil {
			return err
		}
		if err = Sleep(ctx, n.pop); err != nil {
			return err
		}
	}
	return nil
}

// Join 打开群邀请并加入群聊
func (n *Navigator) Join(ctx context.Context, node *uitree.Node, groupName string) (message.JoinOutcome, error) {
	if err := n.dev.Click(ctx, node); err != nil {
		return message.JoinUnavailable, err
	}
	loaded, err := n.WaitPage(ctx, n.cfg.InvitePage, n.long)
	if err != nil || !loaded {
		return message.JoinUnavailable, err
	}

	button, err := n.FindText(ctx, true, inviteButtons...)
	if err != nil {
		return message.JoinUnavailable, err
	}

	var text string
	if button != nil {
		text = button.Text
	}
	switch {
	case text == buttonJoinGroup:
		if err = n.dev.Click(ctx, button); err != nil {
			return message.JoinUnavailable, err
		}
		return message.Joined, Sleep(ctx, n.page)
	case text == buttonGotIt || strings.HasPrefix(text, buttonAccepted) || strings.HasPrefix(text, buttonExpired):
		logger.Infof("[Navigator] 群邀请已失效, group: %s, tip: %s", groupName, text)
		return message.JoinRefused, n.dev.Back(ctx)
	default:
		logger.Warnf("[Navigator] 群邀请页面异常, group: %s", groupName)
		return message.JoinUnavailable, n.dev.Back(ctx)
	}
}
