package loop

import (
	"context"

	"github.com/fachebot/wecom-sync-bot/internal/logger"
	"github.com/fachebot/wecom-sync-bot/internal/report"
	"github.com/fachebot/wecom-sync-bot/internal/uitree"
)

const (
	textRecommended   = "可能的同事"
	textAdd           = "添加"
	textNew           = "新的"
	textView          = "查看"
	textPassVerify    = "通过验证"
	textDone          = "完成"
	textSendMessage   = "发消息"
	textRequestExpire = "添加请求已过期，添加失败"
	textWeChat        = "微信"
)

var newFriendPages = []string{"新的客户", "新的居民", "新的学员"}

// acceptFriends 通讯录有红点时通过待处理的好友请求
func (l *Loop) acceptFriends(ctx context.Context) error {
	root, err := l.dev.Root(ctx)
	if err != nil {
		return err
	}
	tab := homeTab(root, tabContacts)
	if tab == nil || !tabHasBadge(tab) {
		logger.Tracef("[Loop] 通讯录无红点")
		return nil
	}

	logger.Debugf("[Loop] 通讯录有红点")
	if err = l.dev.Click(ctx, tab); err != nil {
		return err
	}
	if err = l.sleep(ctx, l.config.Pop()); err != nil {
		return err
	}

	recommended, err := l.nav.FindText(ctx, true, textRecommended)
	if err != nil {
		return err
	}
	if recommended != nil {
		logger.Debugf("[Loop] 有可能认识的人")
		return l.nav.GoHome(ctx)
	}

	row, err := l.pendingRequestRow(ctx)
	if err != nil {
		return err
	}
	if row == nil {
		logger.Debugf("[Loop] 未发现待添加客户")
		return l.nav.GoHome(ctx)
	}

	logger.Debugf("[Loop] 有待添加客户")
	if err = l.dev.Click(ctx, row); err != nil {
		return err
	}
	if _, err = l.nav.ClickText(ctx, false, textNew); err != nil {
		return err
	}

	var friends []report.Friend
	for retry := 0; retry < 5; retry++ {
		if err = l.alive(ctx); err != nil {
			return err
		}
		view, err := l.nav.FindText(ctx, true, textView)
		if err != nil {
			return err
		}
		if view == nil {
			break
		}
		if err = l.dev.Click(ctx, view); err != nil {
			return err
		}
		if err = l.sleep(ctx, l.config.Page()); err != nil {
			return err
		}
		friend, err := l.passFriendRequest(ctx)
		if err != nil {
			return err
		}
		if friend == nil {
			break
		}
		friends = append(friends, *friend)
	}

	if len(friends) > 0 {
		if err = l.reporter.ReportFriends(ctx, friends); err != nil {
			logger.Errorf("[Loop] 上报好友信息失败: %v", err)
		}
	}
	return l.nav.GoHome(ctx)
}

// pendingRequestRow 含有"添加"按钮的列表行
func (l *Loop) pendingRequestRow(ctx context.Context) (*uitree.Node, error) {
	add, err := l.nav.FindText(ctx, false, textAdd)
	if err != nil || add == nil {
		return nil, err
	}
	son, parent := add, add.Parent()
	for parent != nil && !parent.Is(uitree.RecyclerView, uitree.ListView) {
		son, parent = parent, parent.Parent()
	}
	if parent == nil || len(uitree.FindAll(son, uitree.TextView)) <= 1 {
		return nil, nil
	}
	return son, nil
}

// passFriendRequest 在好友申请详情页通过验证，返回新好友
func (l *Loop) passFriendRequest(ctx context.Context) (*report.Friend, error) {
	root, err := l.dev.Root(ctx)
	if err != nil {
		return nil, err
	}
	avatar := uitree.FindFirst(root, 0, uitree.ImageView)
	if avatar == nil {
		return nil, nil
	}

	var nick string
	for _, text := range uitree.Texts(uitree.FindAll(avatar.Parent(), uitree.TextView)) {
		if text != textWeChat {
			nick = text
			break
		}
	}
	if nick == "" {
		return nil, nil
	}
	logger.Infof("[Loop] 好友请求: %s", nick)

	if _, err = l.nav.ClickText(ctx, true, textPassVerify); err != nil {
		return nil, err
	}
	node, err := l.nav.FindText(ctx, true, textDone, textSendMessage, textRequestExpire)
	if err != nil {
		return nil, err
	}
	if node != nil && node.Text == textDone {
		if err = l.dev.Click(ctx, node); err != nil {
			return nil, err
		}
		if err = l.sleep(ctx, l.config.Pop()); err != nil {
			return nil, err
		}
	}

	node, err = l.nav.FindText(ctx, true, textSendMessage, textRequestExpire)
	if err != nil {
		return nil, err
	}
	var friend *report.Friend
	if node != nil && node.Text == textRequestExpire {
		logger.Infof("[Loop] 添加好友失败: %s", nick)
	} else {
		friend = &report.Friend{Name: nick}
	}

	// 回到新的客户列表
	for retry := 0; retry < 5; retry++ {
		home, err := l.nav.AtHome(ctx)
		if err != nil {
			return nil, err
		}
		if home {
			break
		}
		root, err = l.dev.Root(ctx)
		if err != nil {
			return nil, err
		}
		if uitree.FindOneByText(root, true, newFriendPages...) != nil {
			break
		}
		if err = l.dev.Back(ctx); err != nil {
			return nil, err
		}
		if err = l.sleep(ctx, l.config.Pop()/2); err != nil {
			return nil, err
		}
	}
	return friend, nil
}
