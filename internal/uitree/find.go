package uitree

import "strings"

// FindAll 先序遍历返回所有匹配控件类型的节点（包含 n 自身）
func FindAll(n *Node, classes ...string) []*Node {
	var result []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		if cur == nil {
			return
		}
		if cur.Is(classes...) {
			result = append(result, cur)
		}
		for _, child := range cur.Children {
			walk(child)
		}
	}
	walk(n)
	return result
}

// FindFirst 广度优先查找后代中第一个匹配的节点，limitDepth <= 0 表示不限深度
func FindFirst(n *Node, limitDepth int, classes ...string) *Node {
	if n == nil {
		return nil
	}
	type entry struct {
		node  *Node
		depth int
	}
	queue := []entry{{n, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth > 0 && cur.node.Is(classes...) {
			return cur.node
		}
		if limitDepth > 0 && cur.depth >= limitDepth {
			continue
		}
		for _, child := range cur.node.Children {
			if child != nil {
				queue = append(queue, entry{child, cur.depth + 1})
			}
		}
	}
	return nil
}

// FindAllByText 按文本查找，exact 为 false 时做包含匹配
func FindAllByText(n *Node, exact bool, texts ...string) []*Node {
	var result []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		if cur == nil {
			return
		}
		if cur.Text != "" {
			for _, text := range texts {
				if (exact && cur.Text == text) || (!exact && containsText(cur.Text, text)) {
					result = append(result, cur)
					break
				}
			}
		}
		for _, child := range cur.Children {
			walk(child)
		}
	}
	walk(n)
	return result
}

// FindOneByText 返回第一个匹配文本的节点
func FindOneByText(n *Node, exact bool, texts ...string) *Node {
	nodes := FindAllByText(n, exact, texts...)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// Texts 提取非空白文本
func Texts(nodes []*Node) []string {
	result := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if node.HasText() {
			result = append(result, node.Text)
		}
	}
	return result
}

func containsText(s, sub string) bool {
	return sub != "" && strings.Contains(s, sub)
}
