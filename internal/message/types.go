// Package message 把聊天列表中的消息条目还原成结构化记录。
package message

import (
	"fmt"
	"slices"
	"strings"

	"github.com/fachebot/wecom-sync-bot/internal/shape"
)

// SenderSide 发送方
type SenderSide int

const (
	SenderOther SenderSide = iota
	SenderSelf
	SenderUnknown
)

var senderSideNames = [...]string{"Other", "Self", "Unknown"}

func (s SenderSide) String() string {
	if s < 0 || int(s) >= len(senderSideNames) {
		return fmt.Sprintf("SenderSide(%d)", int(s))
	}
	return senderSideNames[s]
}

func (s SenderSide) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SenderSide) UnmarshalText(text []byte) error {
	idx := slices.Index(senderSideNames[:], string(text))
	if idx < 0 {
		return fmt.Errorf("未知的发送方: %s", text)
	}
	*s = SenderSide(idx)
	return nil
}

// FragmentRole 文本片段的角色
type FragmentRole int

const (
	RoleHeader FragmentRole = iota
	RoleUnlabeled
	RoleBody
)

var fragmentRoleNames = [...]string{"Header", "Unlabeled", "Body"}

func (r FragmentRole) String() string {
	if r < 0 || int(r) >= len(fragmentRoleNames) {
		return fmt.Sprintf("FragmentRole(%d)", int(r))
	}
	return fragmentRoleNames[r]
}

func (r FragmentRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *FragmentRole) UnmarshalText(text []byte) error {
	idx := slices.Index(fragmentRoleNames[:], string(text))
	if idx < 0 {
		return fmt.Errorf("未知的片段角色: %s", text)
	}
	*r = FragmentRole(idx)
	return nil
}

// Fragment 消息中的一段文本
type Fragment struct {
	Role FragmentRole `json:"role"`
	Text string       `json:"text"`
}

// Record 一条消息
type Record struct {
	SenderSide   SenderSide        `json:"senderSide"`
	ContentType  shape.ContentType `json:"contentType"`
	Fragments    []Fragment        `json:"fragments"`
	SpeakerNames []string          `json:"speakerNames"`

	Image       []byte `json:"imageBytes,omitempty"`
	ImageSize   int    `json:"imageByteLength,omitempty"`
	ImageRepeat bool   `json:"imageRepeat,omitempty"`
}

// Equal 比较两条消息，忽略图片相关字段
func (r Record) Equal(o Record) bool {
	return r.SenderSide == o.SenderSide &&
		r.ContentType == o.ContentType &&
		slices.Equal(r.Fragments, o.Fragments) &&
		slices.Equal(r.SpeakerNames, o.SpeakerNames)
}

// BodyFragments 正文片段
func (r Record) BodyFragments() []Fragment {
	var result []Fragment
	for _, f := range r.Fragments {
		if f.Role != RoleHeader {
			result = append(result, f)
		}
	}
	return result
}

// EqualRecords 逐条比较两组消息
func EqualRecords(a, b []Record) bool {
	return slices.EqualFunc(a, b, func(x, y Record) bool { return x.Equal(y) })
}

// RoomKind 房间类型
type RoomKind int

const (
	RoomUnknown RoomKind = iota
	RoomInternalContact
	RoomExternalContact
	RoomInternalGroup
	RoomExternalGroup
)

var roomKindNames = [...]string{"Unknown", "InternalContact", "ExternalContact", "InternalGroup", "ExternalGroup"}

func (k RoomKind) String() string {
	if k < 0 || int(k) >= len(roomKindNames) {
		return fmt.Sprintf("RoomKind(%d)", int(k))
	}
	return roomKindNames[k]
}

func (k RoomKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *RoomKind) UnmarshalText(text []byte) error {
	idx := slices.Index(roomKindNames[:], string(text))
	if idx < 0 {
		return fmt.Errorf("未知的房间类型: %s", text)
	}
	*k = RoomKind(idx)
	return nil
}

// IsContact 单聊
func (k RoomKind) IsContact() bool {
	return k == RoomInternalContact || k == RoomExternalContact
}

// IsGroup 群聊
func (k RoomKind) IsGroup() bool {
	return k == RoomInternalGroup || k == RoomExternalGroup
}

// RoomSignature 当前房间
type RoomSignature struct {
	Kind   RoomKind `json:"roomKind"`
	Titles []string `json:"titles"`
}

// Truncated 标题是否被宿主截断
func (s RoomSignature) Truncated() bool {
	for _, title := range s.Titles {
		if strings.HasSuffix(title, "…") {
			return true
		}
	}
	return false
}
