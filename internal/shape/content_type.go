package shape

import "fmt"

// ContentType 消息内容类型，封闭集合
type ContentType int

const (
	Unknown ContentType = iota
	PlainText
	Link
	Image
	Video
	File
	MiniProgram
	ChatRecord
	Collection
	Solitaire
	Voice
	Card
	Location
	Reply
	ChannelsLive
	ChannelsVideo
	NotifyRobot
	Office
)

var contentTypeNames = [...]string{
	Unknown:       "Unknown",
	PlainText:     "PlainText",
	Link:          "Link",
	Image:         "Image",
	Video:         "Video",
	File:          "File",
	MiniProgram:   "MiniProgram",
	ChatRecord:    "ChatRecord",
	Collection:    "Collection",
	Solitaire:     "Solitaire",
	Voice:         "Voice",
	Card:          "Card",
	Location:      "Location",
	Reply:         "Reply",
	ChannelsLive:  "ChannelsLive",
	ChannelsVideo: "ChannelsVideo",
	NotifyRobot:   "NotifyRobot",
	Office:        "Office",
}

func (t ContentType) String() string {
	if t < 0 || int(t) >= len(contentTypeNames) {
		return contentTypeNames[Unknown]
	}
	return contentTypeNames[t]
}

func (t ContentType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ContentType) UnmarshalText(text []byte) error {
	for i, name := range contentTypeNames {
		if name == string(text) {
			*t = ContentType(i)
			return nil
		}
	}
	return fmt.Errorf("未知的消息类型: %s", text)
}
