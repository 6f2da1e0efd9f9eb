package message

import (
	"regexp"

	"github.com/fachebot/wecom-sync-bot/internal/shape"
)

var speakerSuffixPattern = regexp.MustCompile(`\(.*\)$`)

// Fingerprint 消息摘要，用于判断房间尾部是否已同步
func Fingerprint(record Record) string {
	var prefix string
	if len(record.SpeakerNames) > 0 {
		prefix = speakerSuffixPattern.ReplaceAllString(record.SpeakerNames[0], "") + ": "
	}

	if record.ContentType == shape.Image {
		return prefix + "[图片]"
	}
	if n := len(record.Fragments); n > 0 {
		return prefix + record.Fragments[n-1].Text
	}
	return prefix
}

// Tail 最后一条消息的摘要
func Tail(records []Record) string {
	if len(records) == 0 {
		return ""
	}
	return Fingerprint(records[len(records)-1])
}

// Unseen 去掉已同步的部分，返回需要上报的消息。
// 尾消息与 last 一致时返回空；否则从最后一条匹配 last 的消息之后截取，找不到匹配则全部返回。
func Unseen(records []Record, last string) []Record {
	if len(records) == 0 {
		return nil
	}
	if last == "" {
		return records
	}
	if Tail(records) == last {
		return nil
	}
	for i := len(records) - 2; i >= 0; i-- {
		if Fingerprint(records[i]) == last {
			return records[i+1:]
		}
	}
	return records
}
