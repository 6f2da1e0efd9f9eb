package host

import (
	"context"
	"testing"

	"github.com/fachebot/wecom-sync-bot/internal/config"
	"github.com/fachebot/wecom-sync-bot/internal/host/hosttest"
	"github.com/fachebot/wecom-sync-bot/internal/message"
	"github.com/fachebot/wecom-sync-bot/internal/uitree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHost = config.Host{
	HomePage:        "WwMainActivity",
	ImageViewerPage: "ShowImageController",
	InvitePage:      "JsWebActivity",
}

var testLoop = config.Loop{PopInterval: 5, ChangePage: 5, LongInterval: 20}

func TestNavigator_Join(t *testing.T) {
	testCases := []struct {
		name    string
		button  string
		page    string
		want    message.JoinOutcome
		actions []string
	}{
		{"加入群聊", "加入群聊", "JsWebActivity", message.Joined, []string{"click", "click"}},
		{"邀请已失效", "二维码已失效，无法加入群聊", "JsWebActivity", message.JoinRefused, []string{"click", "back"}},
		{"已接受", "你已接受邀请", "JsWebActivity", message.JoinRefused, []string{"click", "back"}},
		{"页面异常", "其他", "JsWebActivity", message.JoinUnavailable, []string{"click", "back"}},
		{"未进入落地页", "", "ChatActivity", message.JoinUnavailable, []string{"click"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			chat := uitree.New(uitree.ListView, uitree.NewText(uitree.TextView, "邀请你加入群聊"))
			dev := hosttest.New("ChatActivity", chat)
			dev.OnAct = func(d *hosttest.Device, a hosttest.Action) bool {
				if a.Name == "click" && a.Text == "邀请你加入群聊" {
					d.SetPage(tc.page, uitree.New(uitree.FrameLayout, uitree.NewText(uitree.TextView, tc.button)))
				}
				return true
			}
			n := NewNavigator(dev, testHost, testLoop)

			root, err := dev.Root(context.Background())
			require.NoError(t, err)
			outcome, err := n.Join(context.Background(), root.Child(0), "项目群")
			require.NoError(t, err)
			assert.Equal(t, tc.want, outcome)

			var names []string
			for _, a := range dev.Actions() {
				names = append(names, a.Name)
			}
			assert.Equal(t, tc.actions, names)
		})
	}
}

func TestNavigator_CloseImage(t *testing.T) {
	// 预览页面始终不关闭，最多点击 3 次
	dev := hosttest.New("com.tencent.wework.msg.controller.ShowImageController", nil)
	n := NewNavigator(dev, testHost, testLoop)
	require.NoError(t, n.CloseImage(context.Background()))
	assert.Equal(t, 3, dev.Count("tapxy"))

	dev = hosttest.New("com.tencent.wework.msg.controller.ShowImageController", nil)
	dev.OnAct = func(d *hosttest.Device, a hosttest.Action) bool {
		d.SetPage("ChatActivity", nil)
		return true
	}
	n = NewNavigator(dev, testHost, testLoop)
	require.NoError(t, n.CloseImage(context.Background()))
	assert.Equal(t, 1, dev.Count("tapxy"))
}

func TestNavigator_GoHome(t *testing.T) {
	dev := hosttest.New("ChatActivity", nil)
	backs := 0
	dev.OnAct = func(d *hosttest.Device, a hosttest.Action) bool {
		if a.Name == "back" {
			backs++
			if backs == 2 {
				d.SetPage("WwMainActivity", nil)
			}
		}
		return true
	}
	n := NewNavigator(dev, testHost, testLoop)
	require.NoError(t, n.GoHome(context.Background()))
	assert.Equal(t, 2, dev.Count("back"))
	assert.Equal(t, 0, dev.Count("launch"))

	// 返回无效时重新打开应用
	dev = hosttest.New("ChatActivity", nil)
	n = NewNavigator(dev, testHost, testLoop)
	require.NoError(t, n.GoHome(context.Background()))
	assert.Equal(t, 5, dev.Count("back"))
	assert.Equal(t, 1, dev.Count("launch"))
}

func TestNavigator_FindText(t *testing.T) {
	dev := hosttest.New("WwMainActivity", uitree.New(uitree.FrameLayout, uitree.NewText(uitree.TextView, "通讯录")))
	n := NewNavigator(dev, testHost, testLoop)

	node, err := n.FindText(context.Background(), true, "通讯录")
	require.NoError(t, err)
	require.NotNil(t, node)

	node, err = n.FindText(context.Background(), true, "工作台")
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestPageIs(t *testing.T) {
	assert.True(t, pageIs("WwMainActivity", "WwMainActivity"))
	assert.True(t, pageIs("com.tencent.wework.launch.WwMainActivity", "WwMainActivity"))
	assert.False(t, pageIs("com.tencent.wework.launch.XWwMainActivity", "WwMainActivity"))
	assert.False(t, pageIs("WwMainActivity", ""))
}
