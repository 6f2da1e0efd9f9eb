// Package hosttest 提供脚本化的宿主设备，供测试使用。
package hosttest

import (
	"context"
	"errors"
	"sync"

	"github.com/fachebot/wecom-sync-bot/internal/message"
	"github.com/fachebot/wecom-sync-bot/internal/uitree"
)

// Action 一次设备动作
type Action struct {
	Name string // click / tap / tapxy / scroll_forward / scroll_backward / back / launch / toast
	Node *uitree.Node
	Text string
}

// Device 内存中的宿主设备，每个页面对应一棵 UI 树
type Device struct {
	mu sync.Mutex

	Page   string
	Pages  map[string]*uitree.Node
	Rooms  map[string]message.RoomSignature
	Full   []string
	Shots  [][]byte
	OnAct  func(d *Device, a Action) bool // 返回 false 表示动作失败
	Errors map[string]error               // 按动作名注入错误

	actions []Action
}

func New(page string, root *uitree.Node) *Device {
	return &Device{
		Page:  page,
		Pages: map[string]*uitree.Node{page: root},
		Rooms: make(map[string]message.RoomSignature),
	}
}

// SetPage 切换页面，必须在 OnAct 中或无并发时调用
func (d *Device) SetPage(page string, root *uitree.Node) {
	d.Page = page
	if root != nil {
		d.Pages[page] = root
	}
}

// Actions 已执行的动作
func (d *Device) Actions() []Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Action(nil), d.actions...)
}

// Count 指定名称的动作次数
func (d *Device) Count(name string) int {
	n := 0
	for _, a := range d.Actions() {
		if a.Name == name {
			n++
		}
	}
	return n
}

func (d *Device) act(a Action) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.Errors[a.Name]; err != nil {
		return false, err
	}
	d.actions = append(d.actions, a)
	if d.OnAct == nil {
		return true, nil
	}
	return d.OnAct(d, a), nil
}

func (d *Device) mustAct(a Action) error {
	ok, err := d.act(a)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("action failed: " + a.Name)
	}
	return nil
}

func (d *Device) Root(ctx context.Context) (*uitree.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.Errors["root"]; err != nil {
		return nil, err
	}
	root := d.Pages[d.Page]
	if root == nil {
		root = uitree.New(uitree.FrameLayout)
	}
	return uitree.Tree(root), nil
}

func (d *Device) Subtree(ctx context.Context, path []int) (*uitree.Node, error) {
	root, err := d.Root(ctx)
	if err != nil {
		return nil, err
	}
	node := root
	for _, idx := range path {
		node = node.Child(idx)
		if node == nil {
			return nil, errors.New("node gone")
		}
	}
	return node, nil
}

func (d *Device) Click(ctx context.Context, node *uitree.Node) error {
	return d.mustAct(Action{Name: "click", Node: node, Text: nodeText(node)})
}

func (d *Device) Tap(ctx context.Context, node *uitree.Node) error {
	return d.mustAct(Action{Name: "tap", Node: node, Text: nodeText(node)})
}

func (d *Device) TapXY(ctx context.Context, x, y float64) error {
	return d.mustAct(Action{Name: "tapxy"})
}

func (d *Device) Scroll(ctx context.Context, node *uitree.Node, forward bool) (bool, error) {
	name := "scroll_backward"
	if forward {
		name = "scroll_forward"
	}
	return d.act(Action{Name: name, Node: node})
}

func (d *Device) Back(ctx context.Context) error {
	return d.mustAct(Action{Name: "back"})
}

func (d *Device) CurrentPage(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Page, nil
}

func (d *Device) LaunchApp(ctx context.Context) error {
	return d.mustAct(Action{Name: "launch"})
}

func (d *Device) Toast(ctx context.Context, text string) error {
	return d.mustAct(Action{Name: "toast", Text: text})
}

func (d *Device) Room(ctx context.Context) (message.RoomSignature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Rooms[d.Page], nil
}

func (d *Device) FullTitles(ctx context.Context, kind message.RoomKind) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Full, nil
}

func (d *Device) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Shots) == 0 {
		return nil, nil
	}
	shot := d.Shots[0]
	if len(d.Shots) > 1 {
		d.Shots = d.Shots[1:]
	}
	return shot, nil
}

// nodeText 节点或其第一个带文本后代的文本
func nodeText(node *uitree.Node) string {
	if node.HasText() {
		return node.Text
	}
	texts := uitree.Texts(uitree.FindAll(node, uitree.TextView))
	if len(texts) > 0 {
		return texts[0]
	}
	return ""
}
