package message

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/logger"
	"github.com/fachebot/wecom-sync-bot/internal/metrics"
	"github.com/fachebot/wecom-sync-bot/internal/shape"
	"github.com/fachebot/wecom-sync-bot/internal/uitree"
)

// ErrRoomLeft 读取过程中界面已跳转到其他房间
var ErrRoomLeft = errors.New("界面已离开当前房间")

var (
	stopWords             = []string{"解析中"}
	uploadProgressPattern = regexp.MustCompile(`^[0-9]+%$`)
)

// TreeSource 读取宿主 UI 树
type TreeSource interface {
	Root(ctx context.Context) (*uitree.Node, error)
	Subtree(ctx context.Context, path []int) (*uitree.Node, error)
}

// Viewer 图片预览
type Viewer interface {
	OpenImage(ctx context.Context, node *uitree.Node) error
	Capture(ctx context.Context) ([]byte, error)
	CloseImage(ctx context.Context) error
}

// JoinOutcome 加入群聊的结果
type JoinOutcome int

const (
	JoinUnavailable JoinOutcome = iota // 落地页未出现或按钮未知，下次再试
	Joined
	JoinRefused // 邀请已失效或已接受，不再尝试
)

// GroupJoiner 点击群邀请并加入
type GroupJoiner interface {
	Join(ctx context.Context, node *uitree.Node, groupName string) (JoinOutcome, error)
}

// InviteFlags 群邀请一次性标记
type InviteFlags interface {
	GroupInviteDone(ctx context.Context, groupName string) (bool, error)
	MarkGroupInvite(ctx context.Context, groupName string) error
}

// ImageHistory 房间最后一次上报的图片大小
type ImageHistory interface {
	LastImage(ctx context.Context, titles []string) (int, error)
}

type ExtractorOptions struct {
	InviteMarkers   []string
	LoadTimeout     time.Duration // 等待加载项消失的上限
	LoadInterval    time.Duration
	CaptureInterval time.Duration // 两次截图之间的间隔
	Viewer          Viewer
	Joiner          GroupJoiner
}

// Extractor 解析单个消息条目
type Extractor struct {
	tree    TreeSource
	flags   InviteFlags
	history ImageHistory
	opts    ExtractorOptions
}

func NewExtractor(tree TreeSource, flags InviteFlags, history ImageHistory, opts ExtractorOptions) *Extractor {
	return &Extractor{tree: tree, flags: flags, history: history, opts: opts}
}

func (e *Extractor) refresh(ctx context.Context, node *uitree.Node) (*uitree.Node, error) {
	if e.tree == nil {
		return node, nil
	}
	return e.tree.Subtree(ctx, node.Path())
}

func (e *Extractor) classify(ctx context.Context, node *uitree.Node) (shape.ContentType, *uitree.Node) {
	return shape.ClassifyNode(ctx, node, e.refresh, e.opts.LoadTimeout, e.opts.LoadInterval)
}

func textFragments(node *uitree.Node, role FragmentRole, skipStopWords bool) []Fragment {
	var result []Fragment
	for _, text := range uitree.Texts(uitree.FindAll(node, uitree.TextView)) {
		if skipStopWords && slices.Contains(stopWords, text) {
			continue
		}
		result = append(result, Fragment{Role: role, Text: text})
	}
	return result
}

// speakerNames 发言者昵称位于条目中第一个 ViewGroup 内
func speakerNames(item *uitree.Node) []string {
	group := uitree.FindFirst(item, 0, uitree.ViewGroup)
	if group == nil {
		return nil
	}
	return uitree.Texts(uitree.FindAll(group, uitree.TextView))
}

// Extract 解析一条消息
func (e *Extractor) Extract(ctx context.Context, item *uitree.Node, titles []string, kind RoomKind, imageCheck, secondPass bool) (Record, error) {
	logger.Tracef("[Extractor] 开始解析一条消息 %s", item)

	var fragments []Fragment
	if header := uitree.FindFirst(item, 1, uitree.LinearLayout); header != nil {
		fragments = append(fragments, textFragments(header, RoleHeader, false)...)
	}

	body := uitree.FindFirst(item, 1, uitree.RelativeLayout)
	if body == nil || body.ChildCount() < 2 {
		// 没有头像的消息，如撤回提示、系统消息
		for _, f := range textFragments(item, RoleHeader, false) {
			if !slices.Contains(fragments, f) {
				fragments = append(fragments, f)
			}
		}
		return Record{SenderSide: SenderUnknown, ContentType: shape.Unknown, Fragments: fragments}, nil
	}

	switch {
	case body.Child(0).Is(uitree.ImageView):
		return e.extractOther(ctx, item, body, fragments, titles, imageCheck, secondPass)
	case body.Child(body.ChildCount() - 1).Is(uitree.ImageView):
		return e.extractSelf(ctx, body, fragments), nil
	default:
		fragments = append(fragments, textFragments(item, RoleUnlabeled, false)...)
		logger.Warnf("[Extractor] 无法判断消息发送方: %s", item)
		return Record{SenderSide: SenderUnknown, ContentType: shape.Unknown, Fragments: fragments}, nil
	}
}

func (e *Extractor) extractOther(ctx context.Context, item, body *uitree.Node, fragments []Fragment, titles []string, imageCheck, secondPass bool) (Record, error) {
	record := Record{
		SenderSide:   SenderOther,
		ContentType:  shape.Unknown,
		SpeakerNames: speakerNames(item),
	}

	content := uitree.FindFirst(body, 2, uitree.RelativeLayout)
	if content != nil {
		record.ContentType, content = e.classify(ctx, content)
		fragments = append(fragments, textFragments(content, RoleBody, true)...)
	}
	record.Fragments = fragments

	if record.ContentType == shape.Link && secondPass {
		if err := e.tryJoinGroup(ctx, content, record); err != nil {
			return record, err
		}
	}

	if imageCheck && record.ContentType == shape.Image && content != nil && e.opts.Viewer != nil {
		if err := e.captureImage(ctx, content, titles, &record); err != nil {
			logger.Warnf("[Extractor] 截取图片失败, titles: %v, %v", titles, err)
		}
	}
	return record, nil
}

func (e *Extractor) extractSelf(ctx context.Context, body *uitree.Node, fragments []Fragment) Record {
	record := Record{SenderSide: SenderSelf, ContentType: shape.Unknown}

	var bodyFragments []Fragment
	sub := body.Child(0)
	if sub.ChildCount() > 0 {
		record.ContentType, sub = e.classify(ctx, sub)
		bodyFragments = textFragments(sub.Child(sub.ChildCount()-1), RoleBody, true)
	}

	// 图片上传中会显示为只有一个百分比的链接
	if record.ContentType == shape.Link && len(bodyFragments) == 1 && uploadProgressPattern.MatchString(bodyFragments[0].Text) {
		record.ContentType = shape.Image
		bodyFragments = nil
	}
	record.Fragments = append(fragments, bodyFragments...)
	return record
}

func (e *Extractor) isInvite(text string) bool {
	for _, marker := range e.opts.InviteMarkers {
		if marker != "" && strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func (e *Extractor) tryJoinGroup(ctx context.Context, content *uitree.Node, record Record) error {
	if e.opts.Joiner == nil || e.flags == nil || content == nil {
		return nil
	}
	body := record.BodyFragments()
	if len(body) != 2 || !e.isInvite(body[0].Text) {
		return nil
	}

	groupName := body[1].Text
	done, err := e.flags.GroupInviteDone(ctx, groupName)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	logger.Infof("[Extractor] 邀请你加入群聊: %s", groupName)
	outcome, err := e.opts.Joiner.Join(ctx, content, groupName)
	if outcome == Joined {
		// 已点击加入，即使后续等待被中断也要记录，避免重复加入
		if err != nil {
			logger.Warnf("[Extractor] 加入群聊后等待中断, group: %s, %v", groupName, err)
		}
		metrics.GroupJoins.WithLabelValues("joined").Inc()
		if err = e.flags.MarkGroupInvite(context.WithoutCancel(ctx), groupName); err != nil {
			return err
		}
		logger.Infof("[Extractor] 加入群聊: %s", groupName)
		return ErrRoomLeft
	}
	if err != nil {
		logger.Warnf("[Extractor] 加入群聊异常, group: %s, %v", groupName, err)
		return nil
	}

	switch outcome {
	case JoinRefused:
		metrics.GroupJoins.WithLabelValues("refused").Inc()
		logger.Warnf("[Extractor] 加入群聊失败: %s", groupName)
		return e.flags.MarkGroupInvite(ctx, groupName)
	default:
		metrics.GroupJoins.WithLabelValues("unavailable").Inc()
		logger.Warnf("[Extractor] 加入群聊异常: %s", groupName)
		return nil
	}
}

func (e *Extractor) captureImage(ctx context.Context, content *uitree.Node, titles []string, record *Record) error {
	viewer := e.opts.Viewer
	if err := viewer.OpenImage(ctx, content); err != nil {
		return err
	}
	defer func() {
		if err := viewer.CloseImage(ctx); err != nil {
			logger.Warnf("[Extractor] 关闭图片预览失败: %v", err)
		}
	}()

	// 连续两次截图大小一致才认为图片已加载完成
	var data []byte
	for {
		first, err := viewer.Capture(ctx)
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.opts.CaptureInterval):
		}
		second, err := viewer.Capture(ctx)
		if err != nil {
			return err
		}
		if len(first) == len(second) {
			data = second
			break
		}
		logger.Debugf("[Extractor] 图片双重校验失败: %d != %d", len(first), len(second))
	}

	if len(titles) == 0 {
		return nil
	}
	var last int
	if e.history != nil {
		var err error
		if last, err = e.history.LastImage(ctx, titles); err != nil {
			return err
		}
	}
	if last > 0 && last == len(data) {
		record.ImageRepeat = true
		return nil
	}
	record.Image = data
	record.ImageSize = len(data)
	return nil
}
