package onebot

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Event post-type and sub-type discriminators (OneBot v11).
const (
	PostMessage = "message"
	PostNotice  = "notice"

	MessageGroup   = "group"
	MessagePrivate = "private"

	NoticeGroupIncrease = "group_increase"
)

// Sender carries the gateway-reported identity of a message sender.
type Sender struct {
	Role     string `json:"role"` // "owner", "admin", "member"
	Nickname string `json:"nickname"`
}

// Segment is one element of an OneBot structured message.
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Str returns the named data field as a string. Numeric values are
// rendered without an exponent; absent fields return "".
func (s Segment) Str(key string) string {
	return anyToString(s.Data[key])
}

// Segments is a message body. The gateway may deliver either a raw
// CQ-code string or a segment array; only arrays are parsed, a string
// body decodes to nil, matching how the agent only inspects segments.
type Segments []Segment

func (s *Segments) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "[") {
		*s = nil
		return nil
	}
	var segs []Segment
	if err := json.Unmarshal(data, &segs); err != nil {
		return err
	}
	*s = segs
	return nil
}

// Event is one inbound gateway event. Immutable once parsed; fields
// not listed here stay in Raw.
type Event struct {
	PostType    string      `json:"post_type"`
	MessageType string      `json:"message_type"`
	NoticeType  string      `json:"notice_type"`
	SelfID      json.Number `json:"self_id"`
	GroupID     json.Number `json:"group_id"`
	UserID      json.Number `json:"user_id"`
	RawMessage  string      `json:"raw_message"`
	Message     Segments    `json:"message"`
	Sender      Sender      `json:"sender"`

	Raw json.RawMessage `json:"-"`
}

// IsGroupJoin reports whether the event is a member-joined notice.
func (e *Event) IsGroupJoin() bool {
	return e.PostType == PostNotice && e.NoticeType == NoticeGroupIncrease
}

// IsGroupMessage reports whether the event is a group text message.
func (e *Event) IsGroupMessage() bool {
	return e.PostType == PostMessage && e.MessageType == MessageGroup
}

// IsPrivateMessage reports whether the event is a private text message.
func (e *Event) IsPrivateMessage() bool {
	return e.PostType == PostMessage && e.MessageType == MessagePrivate
}

// PlainText concatenates all text segments. Falls back to the raw
// message when the gateway delivered a string body.
func (e *Event) PlainText() string {
	if len(e.Message) == 0 {
		return strings.TrimSpace(e.RawMessage)
	}
	var b strings.Builder
	for _, seg := range e.Message {
		if seg.Type == "text" {
			b.WriteString(seg.Str("text"))
		}
	}
	return strings.TrimSpace(b.String())
}

// Mentions reports whether the message at-mentions the given id.
func (e *Event) Mentions(id string) bool {
	if id == "" {
		return false
	}
	for _, seg := range e.Message {
		if seg.Type == "at" && seg.Str("qq") == id {
			return true
		}
	}
	return false
}

// HasReply reports whether the message carries a reply segment.
func (e *Event) HasReply() bool {
	for _, seg := range e.Message {
		if seg.Type == "reply" {
			return true
		}
	}
	return false
}

// MentionedUsers returns every user id at-mentioned in the message,
// in first-appearance order, de-duplicated, excluding selfID and the
// "mention everyone" marker.
func (e *Event) MentionedUsers(selfID string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, seg := range e.Message {
		if seg.Type != "at" {
			continue
		}
		qq := seg.Str("qq")
		if qq == "" || qq == "all" || qq == selfID || seen[qq] {
			continue
		}
		seen[qq] = true
		out = append(out, qq)
	}
	return out
}

func anyToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		// JSON numbers decode to float64; ids are integral
		if i := int64(t); float64(i) == t {
			return strconv.FormatInt(i, 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return ""
	}
}
