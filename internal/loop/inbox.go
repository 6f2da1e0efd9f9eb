package loop

import (
	"context"
	"strings"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/logger"
	"github.com/fachebot/wecom-sync-bot/internal/metrics"
	"github.com/fachebot/wecom-sync-bot/internal/uitree"
)

const (
	tabMessages    = "消息"
	tabContacts    = "通讯录"
	groupChatTitle = "群聊"
	mentionPrefix  = "＠"

	noTipInterval = time.Hour
	maxScrolls    = 50
)

// rowCheck 会话列表检查结果
type rowCheck int

const (
	rowNone   rowCheck = iota
	rowOpened          // 已点击进入房间
	rowStale           // 列表中剩余会话都不是近期的
)

// homeTab 首页底部标签，标签栏有 4 或 5 个标签
func homeTab(root *uitree.Node, name string) *uitree.Node {
	for _, node := range uitree.FindAllByText(root, true, name) {
		if c := node.Ancestor(3).ChildCount(); c == 4 || c == 5 {
			return node
		}
	}
	return nil
}

// tabHasBadge 标签旁有红点
func tabHasBadge(tab *uitree.Node) bool {
	return tab.Parent().ChildCount() > 1
}

// rowTexts 会话行的 标题/时间/内容，忽略 @ 提示
func rowTexts(row *uitree.Node) []string {
	var texts []string
	for _, tv := range uitree.FindAll(row, uitree.TextView) {
		if strings.HasPrefix(tv.Text, mentionPrefix) {
			continue
		}
		texts = append(texts, tv.Text)
	}
	return texts
}

func (l *Loop) isRecent(when string) bool {
	return strings.TrimSpace(when) == "" || matchAny(when, l.recentPatterns)
}

// inboxList 读取首页会话列表，最多重试 3 次
func (l *Loop) inboxList(ctx context.Context) (*uitree.Node, *uitree.Node, error) {
	for attempt := 1; attempt <= 3; attempt++ {
		root, err := l.dev.Root(ctx)
		if err != nil {
			return nil, nil, err
		}
		list := uitree.FindFirst(root, 0, uitree.RecyclerView, uitree.ListView, uitree.ViewGroup)
		if list.ChildCount() >= 2 {
			return root, list, nil
		}
		if err = l.sleep(ctx, l.config.Pop()/3); err != nil {
			return nil, nil, err
		}
	}
	logger.Warnf("[Loop] 读取聊天列表失败")
	return nil, nil, nil
}

// open 点击会话行，未进入房间时点击整行
func (l *Loop) open(ctx context.Context, node, row *uitree.Node) error {
	if err := l.dev.Click(ctx, node); err != nil {
		logger.Debugf("[Loop] 点击失败，尝试点击整行: %v", err)
	} else {
		if err = l.sleep(ctx, l.config.Page()); err != nil {
			return err
		}
		home, err := l.nav.AtHome(ctx)
		if err != nil || !home {
			return err
		}
	}
	if err := l.dev.Tap(ctx, row); err != nil {
		return err
	}
	return l.sleep(ctx, l.config.Page())
}

// scanInbox 按优先级检查会话列表：未读红点 > 无提示消息 > 不一致消息
func (l *Loop) scanInbox(ctx context.Context) (bool, error) {
	root, list, err := l.inboxList(ctx)
	if err != nil || list == nil {
		return false, err
	}

	opened, err := l.openUnread(ctx, list)
	if err != nil || opened {
		return opened, err
	}

	if tab := homeTab(root, tabMessages); tab != nil && tabHasBadge(tab) {
		logger.Debugf("[Loop] 消息有红点")
		for i := 0; i < 2; i++ {
			if err = l.dev.Tap(ctx, tab); err != nil {
				return false, err
			}
			if err = l.sleep(ctx, l.config.Pop()/5); err != nil {
				return false, err
			}
		}
		if _, list, err = l.inboxList(ctx); err != nil || list == nil {
			return false, err
		}
		return l.openUnread(ctx, list)
	}

	result, err := l.checkNoTip(ctx, list)
	if err != nil || result == rowOpened {
		return result == rowOpened, err
	}
	result, err = l.checkNoSync(ctx, list)
	if err != nil || result == rowOpened {
		return result == rowOpened, err
	}
	logger.Tracef("[Loop] 未发现新消息或无提示消息")
	return false, nil
}

// openUnread 点击第一个带未读数字的会话
func (l *Loop) openUnread(ctx context.Context, list *uitree.Node) (bool, error) {
	var spots []*uitree.Node
	for _, row := range list.Children {
		if !row.Is(uitree.RelativeLayout) || row.ChildCount() < 2 {
			continue
		}
		spot := row.Child(1)
		if spot.Is(uitree.TextView) && badgePattern.MatchString(strings.ReplaceAll(spot.Text, "+", "")) {
			spots = append(spots, spot)
		}
	}
	if len(spots) == 0 {
		return false, nil
	}

	logger.Infof("[Loop] 发现未读消息: %d条", len(spots))
	metrics.InboxDecisions.WithLabelValues("badge").Inc()
	return true, l.open(ctx, spots[0], spots[0].Parent())
}

// checkNoTip 查找近期的 拉入群聊/修改群名/移出群聊 等没有红点的消息
func (l *Loop) checkNoTip(ctx context.Context, list *uitree.Node) (rowCheck, error) {
	now := l.now()
	for _, row := range list.Children {
		texts := rowTexts(row)
		if len(texts) != 3 {
			continue
		}
		title, when, content := texts[0], texts[1], texts[2]
		if !l.isRecent(when) {
			logger.Tracef("[Loop] 未发现无提示消息: %s", when)
			return rowStale, nil
		}
		if !matchAny(content, l.tipPatterns) {
			continue
		}

		last, err := l.store.NoTipAt(ctx, title)
		if err != nil {
			return rowNone, err
		}
		if interval := now.Sub(last); interval <= noTipInterval {
			logger.Tracef("[Loop] 发现无提示消息: %v 消息在 %v 前已被查看", texts, interval.Round(time.Second))
			continue
		}

		logger.Infof("[Loop] 发现无提示消息: %v", texts)
		metrics.InboxDecisions.WithLabelValues("tip").Inc()
		if err = l.open(ctx, row, row); err != nil {
			return rowNone, err
		}
		return rowOpened, l.store.MarkNoTip(ctx, title, now)
	}
	return rowNone, nil
}

// checkNoSync 查找内容与最后同步消息不一致的会话
func (l *Loop) checkNoSync(ctx context.Context, list *uitree.Node) (rowCheck, error) {
	seen := make(map[string]bool)
	for _, row := range list.Children {
		texts := rowTexts(row)
		if len(texts) != 3 {
			continue
		}
		title, when, content := texts[0], texts[1], texts[2]
		if title == groupChatTitle || seen[title] {
			continue
		}
		seen[title] = true
		if !l.isRecent(when) {
			logger.Tracef("[Loop] 未发现不一致消息: %s", when)
			return rowStale, nil
		}

		last, ok, err := l.store.LastSync(ctx, title)
		if err != nil {
			return rowNone, err
		}
		if !ok || strings.Contains(content, strings.TrimSpace(strings.ReplaceAll(last, "\n", " "))) {
			continue
		}

		actioned, err := l.store.NoSync(ctx, title)
		if err != nil {
			return rowNone, err
		}
		if actioned == last {
			logger.Tracef("[Loop] 消息多次不一致: %v", texts)
			continue
		}

		logger.Warnf("[Loop] 发现不一致消息: %v %s", texts, last)
		metrics.InboxDecisions.WithLabelValues("nosync").Inc()
		if err = l.store.SetNoSync(ctx, title, last); err != nil {
			return rowNone, err
		}
		return rowOpened, l.open(ctx, row, row)
	}
	return rowNone, nil
}

// hasNewMessage 出现新消息、离开消息页或被停止时返回 true
func (l *Loop) hasNewMessage(ctx context.Context) (bool, error) {
	if l.alive(ctx) != nil {
		logger.Debugf("[Loop] 停止读循环时停止")
		return true, nil
	}
	root, err := l.dev.Root(ctx)
	if err != nil {
		return false, err
	}
	tab := homeTab(root, tabMessages)
	switch {
	case tab == nil || !tab.Selected:
		logger.Debugf("[Loop] 不在消息页时停止")
		return true, nil
	case tabHasBadge(tab):
		logger.Debugf("[Loop] 有新消息时停止")
		return true, nil
	}
	return false, nil
}

func (l *Loop) switchTab(ctx context.Context, name string) error {
	root, err := l.dev.Root(ctx)
	if err != nil {
		return err
	}
	tab := homeTab(root, name)
	if tab == nil {
		logger.Warnf("[Loop] 未找到首页标签: %s", name)
		return nil
	}
	if err = l.dev.Click(ctx, tab); err != nil {
		return err
	}
	return l.sleep(ctx, l.config.Pop())
}

// reconcile 切换标签刷新界面，滚动整个会话列表重新检查
func (l *Loop) reconcile(ctx context.Context) (bool, error) {
	logger.Infof("[Loop] 检查最近列表")
	if err := l.switchTab(ctx, tabContacts); err != nil {
		return false, err
	}
	if err := l.switchTab(ctx, tabMessages); err != nil {
		return false, err
	}
	if stop, err := l.hasNewMessage(ctx); err != nil || stop {
		return false, err
	}

	// 滚动到顶部
	for i := 0; i < maxScrolls; i++ {
		scrolled, err := l.scrollInbox(ctx, false)
		if err != nil {
			return false, err
		}
		if !scrolled {
			break
		}
		if stop, err := l.hasNewMessage(ctx); err != nil || stop {
			return false, err
		}
	}

	// 逐页向下检查
	stop, opened, err := l.checkPage(ctx)
	for i := 0; i < maxScrolls && !stop && err == nil; i++ {
		var scrolled bool
		if scrolled, err = l.scrollInbox(ctx, true); err != nil || !scrolled {
			break
		}
		stop, opened, err = l.checkPage(ctx)
	}
	if err != nil || opened {
		return opened, err
	}

	logger.Tracef("[Loop] 回到消息列表顶部")
	root, err := l.dev.Root(ctx)
	if err != nil {
		return false, err
	}
	if tab := homeTab(root, tabMessages); tab != nil {
		for i := 0; i < 2; i++ {
			if err = l.dev.Tap(ctx, tab); err != nil {
				return false, err
			}
			if err = l.sleep(ctx, l.config.Pop()/5); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

func (l *Loop) scrollInbox(ctx context.Context, forward bool) (bool, error) {
	_, list, err := l.inboxList(ctx)
	if err != nil || list == nil {
		return false, err
	}
	scrolled, err := l.dev.Scroll(ctx, list, forward)
	if err != nil || !scrolled {
		return false, err
	}
	return true, l.sleep(ctx, l.config.Pop()/5)
}

// checkPage 检查当前可见的一页会话：未读红点 > 无提示消息 > 不一致消息
func (l *Loop) checkPage(ctx context.Context) (stop, opened bool, err error) {
	if l.alive(ctx) != nil {
		return true, false, nil
	}
	root, list, err := l.inboxList(ctx)
	if err != nil || list == nil {
		return true, false, err
	}
	if tab := homeTab(root, tabMessages); tab != nil && tab.Selected {
		if opened, err = l.openUnread(ctx, list); err != nil || opened {
			return true, opened, err
		}
	}
	if stop, err = l.hasNewMessage(ctx); err != nil || stop {
		return stop, false, err
	}

	result, err := l.checkNoTip(ctx, list)
	if err != nil || result == rowOpened {
		return true, result == rowOpened, err
	}
	result, err = l.checkNoSync(ctx, list)
	if err != nil || result != rowNone {
		return true, result == rowOpened, err
	}
	return false, false, nil
}
