package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// Frame types exchanged between client and server. Every frame is a single
// JSON document; on TCP frames are newline-delimited, on WebSocket one frame
// travels per text message.
const (
	TypeLogin          = "login"
	TypeLogout         = "logout"
	TypeMessage        = "message"
	TypeNotification   = "notification"
	TypeOfflineMessage = "offline_message"
)

// TimestampFormat is UTC with second resolution.
const TimestampFormat = "2006-01-02T15:04:05Z"

// MaxFrameSize bounds a single frame on the wire.
const MaxFrameSize = 64 * 1024

var ErrInvalidFrame = errors.New("invalid frame")

type Frame struct {
	Type      string `json:"type"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Content   string `json:"content,omitempty"`
}

func Decode(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, ErrInvalidFrame
	}
	if f.Type == "" {
		return nil, ErrInvalidFrame
	}
	return &f, nil
}

func Encode(f *Frame) ([]byte, error) {
	return json.Marshal(f)
}

func Notification(content string) *Frame {
	return &Frame{Type: TypeNotification, Content: content}
}

func Message(sender, content string, timestamp time.Time) *Frame {
	return &Frame{
		Type:      TypeMessage,
		Sender:    sender,
		Content:   content,
		Timestamp: FormatTimestamp(timestamp),
	}
}

func OfflineMessage(sender, content string, timestamp time.Time) *Frame {
	return &Frame{
		Type:      TypeOfflineMessage,
		Sender:    sender,
		Content:   content,
		Timestamp: FormatTimestamp(timestamp),
	}
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}
