package loop

import (
	"testing"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/host/hosttest"
	"github.com/fachebot/wecom-sync-bot/internal/uitree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openOnClick 点击会话行后进入聊天页
func openOnClick(d *hosttest.Device, a hosttest.Action) bool {
	if (a.Name == "click" || a.Name == "tap") && rowTitle(a.Node) != "" {
		d.SetPage(chatPage, chatScreen())
	}
	return true
}

func TestScanInbox_BadgeBeforeTip(t *testing.T) {
	inbox := inboxScreen(tabBar(tabMessages, tabMessages),
		inboxRow("Ops", "", "invited you to join", ""),
		inboxRow("Alpha", "10:00", "在吗", "3"),
	)
	f := newFixture(t, testConfig(), inbox)
	f.dev.OnAct = openOnClick
	ctx := f.enable(t)

	opened, err := f.loop.scanInbox(ctx)
	require.NoError(t, err)
	assert.True(t, opened)
	assert.Equal(t, []string{"Alpha"}, f.clicked())

	at, err := f.sync.NoTipAt(ctx, "Ops")
	require.NoError(t, err)
	assert.True(t, at.IsZero(), "未读消息优先，不处理无提示消息")
}

func TestScanInbox_NoTip(t *testing.T) {
	testCases := []struct {
		name   string
		lastAt time.Duration // 距离上次处理的时间，0 表示从未处理
		opened bool
	}{
		{"从未处理", 0, true},
		{"一小时内已处理", 10 * time.Minute, false},
		{"超过一小时", 2 * time.Hour, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			inbox := inboxScreen(tabBar(tabMessages),
				inboxRow("Ops", "", "invited you to join", ""),
				inboxRow("Dev", "09:30", "收到", ""),
			)
			f := newFixture(t, testConfig(), inbox)
			f.dev.OnAct = openOnClick
			ctx := f.enable(t)
			if tc.lastAt > 0 {
				require.NoError(t, f.sync.MarkNoTip(ctx, "Ops", f.now.Add(-tc.lastAt)))
			}

			opened, err := f.loop.scanInbox(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.opened, opened)

			at, err := f.sync.NoTipAt(ctx, "Ops")
			require.NoError(t, err)
			if tc.opened {
				assert.Equal(t, []string{"Ops"}, f.clicked())
				assert.Equal(t, f.now.Unix(), at.Unix())
			} else {
				assert.Empty(t, f.clicked())
				assert.Equal(t, f.now.Add(-tc.lastAt).Unix(), at.Unix())
			}
		})
	}
}

func TestScanInbox_StaleRows(t *testing.T) {
	inbox := inboxScreen(tabBar(tabMessages),
		inboxRow("Dev", "2023/01/01", "张三 移出了群聊", ""),
		inboxRow("Ops", "", "invited you to join", ""),
	)
	f := newFixture(t, testConfig(), inbox)
	f.dev.OnAct = openOnClick
	ctx := f.enable(t)

	opened, err := f.loop.scanInbox(ctx)
	require.NoError(t, err)
	assert.False(t, opened, "遇到非近期会话后不再检查后面的会话")
}

func TestScanInbox_NoSync(t *testing.T) {
	inbox := inboxScreen(tabBar(tabMessages),
		inboxRow("群聊", "10:00", "李四: 新消息", ""),
		inboxRow("Ops", "10:00", "张三: 在吗", ""),
	)
	f := newFixture(t, testConfig(), inbox)
	f.dev.OnAct = openOnClick
	ctx := f.enable(t)
	require.NoError(t, f.sync.SetLastSync(ctx, "Ops", "张三: 好的"))
	require.NoError(t, f.sync.SetLastSync(ctx, "群聊", "李四: 旧消息"))

	opened, err := f.loop.scanInbox(ctx)
	require.NoError(t, err)
	assert.True(t, opened)
	assert.Equal(t, []string{"Ops"}, f.clicked())
	actioned, err := f.sync.NoSync(ctx, "Ops")
	require.NoError(t, err)
	assert.Equal(t, "张三: 好的", actioned)

	// 同一个不一致只处理一次
	f.dev.SetPage(homePage, inbox)
	opened, err = f.loop.scanInbox(ctx)
	require.NoError(t, err)
	assert.False(t, opened)
}

func TestScanInbox_InSync(t *testing.T) {
	inbox := inboxScreen(tabBar(tabMessages),
		inboxRow("Ops", "10:00", "张三: 多行 消息", ""),
		inboxRow("Dev", "09:00", "好", ""),
	)
	f := newFixture(t, testConfig(), inbox)
	f.dev.OnAct = openOnClick
	ctx := f.enable(t)
	require.NoError(t, f.sync.SetLastSync(ctx, "Ops", "张三: 多行\n消息 "))

	opened, err := f.loop.scanInbox(ctx)
	require.NoError(t, err)
	assert.False(t, opened)
}

func TestScanInbox_TabBadgeDoubleTap(t *testing.T) {
	inbox := inboxScreen(tabBar(tabMessages, tabMessages),
		inboxRow("Ops", "10:00", "hi", ""),
		inboxRow("Dev", "09:00", "yo", ""),
	)
	f := newFixture(t, testConfig(), inbox)
	taps := 0
	f.dev.OnAct = func(d *hosttest.Device, a hosttest.Action) bool {
		if a.Name == "tap" && a.Text == tabMessages {
			taps++
			if taps == 2 {
				d.SetPage(homePage, inboxScreen(tabBar(tabMessages),
					inboxRow("Ops", "10:00", "hi", "99+"),
					inboxRow("Dev", "09:00", "yo", ""),
				))
			}
			return true
		}
		return openOnClick(d, a)
	}
	ctx := f.enable(t)

	opened, err := f.loop.scanInbox(ctx)
	require.NoError(t, err)
	assert.True(t, opened)
	assert.Equal(t, 2, taps)
	clicked := f.clicked()
	assert.Equal(t, "Ops", clicked[len(clicked)-1])
}

func TestScanInbox_ClickFallback(t *testing.T) {
	inbox := inboxScreen(tabBar(tabMessages),
		inboxRow("Ops", "10:00", "hi", "1"),
		inboxRow("Dev", "09:00", "yo", ""),
	)
	f := newFixture(t, testConfig(), inbox)
	f.dev.OnAct = func(d *hosttest.Device, a hosttest.Action) bool {
		if a.Name == "tap" {
			d.SetPage(chatPage, chatScreen())
		}
		return true
	}
	ctx := f.enable(t)

	opened, err := f.loop.scanInbox(ctx)
	require.NoError(t, err)
	assert.True(t, opened)
	assert.Equal(t, 1, f.dev.Count("click"))
	assert.Equal(t, 1, f.dev.Count("tap"), "点击未跳转时点击整行")
}

func TestScanInbox_NoList(t *testing.T) {
	f := newFixture(t, testConfig(), uitree.New(uitree.FrameLayout, uitree.New(uitree.RecyclerView)))
	ctx := f.enable(t)

	opened, err := f.loop.scanInbox(ctx)
	require.NoError(t, err)
	assert.False(t, opened)
}

func TestReconcile(t *testing.T) {
	page1 := inboxScreen(tabBar(tabMessages),
		inboxRow("A", "10:00", "hi", ""),
		inboxRow("B", "10:00", "yo", ""),
	)
	page2 := inboxScreen(tabBar(tabMessages),
		inboxRow("C", "昨天", "王五修改群名为 新群", ""),
		inboxRow("D", "昨天", "ok", ""),
	)
	f := newFixture(t, testConfig(), page1)
	f.dev.OnAct = func(d *hosttest.Device, a hosttest.Action) bool {
		switch a.Name {
		case "scroll_backward":
			return false
		case "scroll_forward":
			if d.Pages[homePage] == page1 {
				d.SetPage(homePage, page2)
				return true
			}
			return false
		}
		if rowTitle(a.Node) == "C" {
			d.SetPage(chatPage, chatScreen())
		}
		return true
	}
	ctx := f.enable(t)

	opened, err := f.loop.reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, opened)
	assert.Contains(t, f.clicked(), "C")
	assert.Equal(t, 1, f.dev.Count("scroll_forward"))
}

func TestReconcile_UnreadAfterScroll(t *testing.T) {
	page1 := inboxScreen(tabBar(tabMessages),
		inboxRow("A", "10:00", "hi", ""),
		inboxRow("B", "10:00", "yo", ""),
	)
	page2 := inboxScreen(tabBar(tabMessages),
		inboxRow("C", "10:00", "ok", ""),
		inboxRow("D", "10:01", "新消息", "2"),
	)
	f := newFixture(t, testConfig(), page1)
	f.dev.OnAct = func(d *hosttest.Device, a hosttest.Action) bool {
		switch a.Name {
		case "scroll_backward":
			return false
		case "scroll_forward":
			if d.Pages[homePage] == page1 {
				d.SetPage(homePage, page2)
				return true
			}
			return false
		}
		if rowTitle(a.Node) == "D" {
			d.SetPage(chatPage, chatScreen())
		}
		return true
	}
	ctx := f.enable(t)

	opened, err := f.loop.reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, opened)
	assert.Contains(t, f.clicked(), "D")
	assert.NotContains(t, f.clicked(), "C", "未读红点优先于其他检查")
}

func TestReconcile_NothingFound(t *testing.T) {
	inbox := inboxScreen(tabBar(tabMessages),
		inboxRow("A", "10:00", "hi", ""),
		inboxRow("B", "10:00", "yo", ""),
	)
	f := newFixture(t, testConfig(), inbox)
	f.dev.OnAct = func(d *hosttest.Device, a hosttest.Action) bool {
		return a.Name != "scroll_forward" && a.Name != "scroll_backward"
	}
	ctx := f.enable(t)

	opened, err := f.loop.reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, opened)
	assert.Equal(t, 2, f.dev.Count("click"), "切换 通讯录/消息 标签")
	assert.Equal(t, 2, f.dev.Count("tap"), "双击消息标签回到顶部")
}

func TestReconcile_StopOnNewMessage(t *testing.T) {
	inbox := inboxScreen(tabBar(tabMessages, tabMessages),
		inboxRow("A", "10:00", "hi", ""),
		inboxRow("B", "10:00", "yo", ""),
	)
	f := newFixture(t, testConfig(), inbox)
	ctx := f.enable(t)

	opened, err := f.loop.reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, opened)
	assert.Equal(t, 0, f.dev.Count("scroll_backward"))
}

func TestHomeTab(t *testing.T) {
	root := uitree.Tree(inboxScreen(tabBar(tabContacts, tabContacts)))
	tab := homeTab(root, tabContacts)
	require.NotNil(t, tab)
	assert.True(t, tab.Selected)
	assert.True(t, tabHasBadge(tab))

	tab = homeTab(root, tabMessages)
	require.NotNil(t, tab)
	assert.False(t, tabHasBadge(tab))

	assert.Nil(t, homeTab(root, "工作台2"))
}
