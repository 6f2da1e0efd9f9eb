// Package uitree 是宿主 UI 元素树的只读视图。
// 每个 Node 都是一次尽力而为的物化读取，宿主界面随时可能变化，调用方需要自行二次校验。
package uitree

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// 控件类型
const (
	TextView       = "android.widget.TextView"
	ImageView      = "android.widget.ImageView"
	ListView       = "android.widget.ListView"
	RecyclerView   = "androidx.recyclerview.widget.RecyclerView"
	ViewGroup      = "android.view.ViewGroup"
	View           = "android.view.View"
	RelativeLayout = "android.widget.RelativeLayout"
	LinearLayout   = "android.widget.LinearLayout"
	FrameLayout    = "android.widget.FrameLayout"
	ProgressBar    = "android.widget.ProgressBar"
)

// Node UI 元素
type Node struct {
	Class    string  `json:"class"`
	Text     string  `json:"text,omitempty"`
	Selected bool    `json:"selected,omitempty"`
	Children []*Node `json:"children,omitempty"`

	parent *Node
	path   []int
}

// Decode 解析宿主下发的 JSON 树，base 为该子树在整棵树中的路径
func Decode(data []byte, base []int) (*Node, error) {
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("解析 UI 树失败: %w", err)
	}
	root.Link(nil, base)
	return &root, nil
}

// Link 恢复父节点指针与索引路径
func (n *Node) Link(parent *Node, path []int) {
	n.parent = parent
	n.path = append([]int(nil), path...)
	for i, child := range n.Children {
		if child == nil {
			continue
		}
		child.Link(n, append(n.path, i))
	}
}

func (n *Node) Parent() *Node {
	if n == nil {
		return nil
	}
	return n.parent
}

func (n *Node) ChildCount() int {
	if n == nil {
		return 0
	}
	return len(n.Children)
}

// Child 越界返回 nil
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// Path 节点在整棵树中的索引路径
func (n *Node) Path() []int {
	if n == nil {
		return nil
	}
	return append([]int(nil), n.path...)
}

// PathString 形如 "0.3.1"，根节点为空串
func (n *Node) PathString() string {
	parts := make([]string, len(n.path))
	for i, idx := range n.path {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ".")
}

func (n *Node) Is(classes ...string) bool {
	if n == nil {
		return false
	}
	for _, class := range classes {
		if n.Class == class {
			return true
		}
	}
	return false
}

// HasText 文本非空白
func (n *Node) HasText() bool {
	return n != nil && strings.TrimSpace(n.Text) != ""
}

// Ancestor 向上第 k 层祖先
func (n *Node) Ancestor(k int) *Node {
	cur := n
	for i := 0; i < k && cur != nil; i++ {
		cur = cur.parent
	}
	return cur
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s[%s] %q", n.Class, n.PathString(), n.Text)
}

// New 构造节点，主要用于宿主适配层与测试
func New(class string, children ...*Node) *Node {
	return &Node{Class: class, Children: children}
}

// NewText 构造带文本的节点
func NewText(class, text string) *Node {
	return &Node{Class: class, Text: text}
}

// Tree 以 root 为根链接整棵树
func Tree(root *Node) *Node {
	root.Link(nil, nil)
	return root
}
