package loop

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/config"
	"github.com/fachebot/wecom-sync-bot/internal/host"
	"github.com/fachebot/wecom-sync-bot/internal/host/hosttest"
	"github.com/fachebot/wecom-sync-bot/internal/message"
	"github.com/fachebot/wecom-sync-bot/internal/model"
	"github.com/fachebot/wecom-sync-bot/internal/report"
	"github.com/fachebot/wecom-sync-bot/internal/store"
	"github.com/fachebot/wecom-sync-bot/internal/uitree"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	homePage = "WwMainActivity"
	chatPage = "ChatActivity"
)

var testHost = config.Host{
	HomePage:        homePage,
	ImageViewerPage: "ShowImageController",
	InvitePage:      "JsWebActivity",
}

func testConfig() *config.Loop {
	return &config.Loop{
		PollInterval:     1,
		PopInterval:      5,
		ChangePage:       1,
		LongInterval:     5,
		RecoveryInterval: 1,
		ReadTimeout:      5,
		TipPatterns:      []string{"移出了群聊", "修改群名为", "invited you to join"},
		RecentPatterns:   []string{"刚刚", "昨天", ":"},
	}
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) ReportMessages(ctx context.Context, room message.RoomSignature, records []message.Record) error {
	return m.Called(room, records).Error(0)
}

func (m *mockReporter) ReportFriends(ctx context.Context, friends []report.Friend) error {
	return m.Called(friends).Error(0)
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *fakeAlerter) Alert(ctx context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, text)
	return nil
}

func (a *fakeAlerter) Alerts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.alerts)
}

type fakeResumer struct {
	mu      sync.Mutex
	cleared int
	posted  int
}

func (r *fakeResumer) ClearPending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
}

func (r *fakeResumer) PostResume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posted++
}

func (r *fakeResumer) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleared, r.posted
}

type fixture struct {
	dev      *hosttest.Device
	loop     *Loop
	sync     *model.SyncStateModel
	flags    *model.FlagModel
	reporter *mockReporter
	alerter  *fakeAlerter
	resumer  *fakeResumer
	now      time.Time
}

func newFixture(t *testing.T, cfg *config.Loop, inbox *uitree.Node) *fixture {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "loop.db") + "?mode=rwc"
	kv, err := store.NewSQLiteStore(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	f := &fixture{
		dev:      hosttest.New(homePage, inbox),
		sync:     model.NewSyncStateModel(kv),
		flags:    model.NewFlagModel(kv),
		reporter: &mockReporter{},
		alerter:  &fakeAlerter{},
		resumer:  &fakeResumer{},
		now:      time.Unix(1700000000, 0),
	}

	nav := host.NewNavigator(f.dev, testHost, *cfg)
	extractor := message.NewExtractor(f.dev, f.flags, f.sync, message.ExtractorOptions{
		LoadTimeout:  10 * time.Millisecond,
		LoadInterval: time.Millisecond,
	})
	reader := message.NewReader(f.dev, extractor, time.Millisecond, false)
	f.loop = New(cfg, nav, reader, f.reporter, f.sync, f.flags, f.alerter)
	f.loop.now = func() time.Time { return f.now }
	f.loop.SetResumer(f.resumer)
	return f
}

func tv(text string) *uitree.Node {
	return uitree.NewText(uitree.TextView, text)
}

// inboxRow 会话行：头像、可选未读数、标题/时间/内容
func inboxRow(title, when, content, badge string) *uitree.Node {
	children := []*uitree.Node{uitree.New(uitree.ImageView)}
	if badge != "" {
		children = append(children, tv(badge))
	}
	children = append(children, uitree.New(uitree.LinearLayout, tv(title), tv(when), tv(content)))
	return uitree.New(uitree.RelativeLayout, children...)
}

// tabBar 首页底部标签栏
func tabBar(selected string, badges ...string) *uitree.Node {
	var tabs []*uitree.Node
	for _, name := range []string{tabMessages, tabContacts, "工作台", "我"} {
		label := tv(name)
		label.Selected = name == selected
		inner := uitree.New(uitree.RelativeLayout, label)
		if slices.Contains(badges, name) {
			inner.Children = append(inner.Children, uitree.New(uitree.View))
		}
		tabs = append(tabs, uitree.New(uitree.LinearLayout, inner))
	}
	return uitree.New(uitree.LinearLayout, tabs...)
}

func inboxScreen(tabs *uitree.Node, rows ...*uitree.Node) *uitree.Node {
	return uitree.New(uitree.FrameLayout, uitree.New(uitree.RecyclerView, rows...), tabs)
}

// rowTitle 动作所在会话行的标题
func rowTitle(n *uitree.Node) string {
	for n != nil && !n.Parent().Is(uitree.RecyclerView) {
		n = n.Parent()
	}
	if n == nil {
		return ""
	}
	texts := uitree.Texts(uitree.FindAll(n.Child(n.ChildCount()-1), uitree.TextView))
	if len(texts) == 0 {
		return ""
	}
	return texts[0]
}

// chatItem 左侧头像的消息条目
func chatItem(speaker, text string) *uitree.Node {
	return uitree.New(uitree.RelativeLayout,
		uitree.New(uitree.RelativeLayout,
			uitree.New(uitree.ImageView),
			uitree.New(uitree.LinearLayout,
				uitree.New(uitree.ViewGroup, tv(speaker)),
				uitree.New(uitree.RelativeLayout, tv(text)),
			),
		),
	)
}

func chatScreen(items ...*uitree.Node) *uitree.Node {
	return uitree.New(uitree.FrameLayout, uitree.New(uitree.ListView, items...))
}

func (f *fixture) enable(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.loop.Enable()
	return ctx
}

func (f *fixture) clicked() []string {
	var titles []string
	for _, a := range f.dev.Actions() {
		if a.Name == "click" || a.Name == "tap" {
			titles = append(titles, rowTitle(a.Node))
		}
	}
	return titles
}
