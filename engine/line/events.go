// Package line implements the inbound webhook surface and the reply
// client for the LINE Messaging API.
package line

import "encoding/json"

// SignatureHeader carries the base64 HMAC-SHA256 of the raw request
// body, keyed with the channel secret.
const SignatureHeader = "X-Line-Signature"

const (
	EventTypeMessage  = "message"
	EventTypePostback = "postback"
	EventTypeFollow   = "follow"

	MessageTypeText = "text"
)

// WebhookRequest is the envelope the platform posts to the webhook
// endpoint. One request may batch several events.
type WebhookRequest struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

type Event struct {
	Type       string    `json:"type"`
	Mode       string    `json:"mode,omitempty"`
	Timestamp  int64     `json:"timestamp"`
	ReplyToken string    `json:"replyToken,omitempty"`
	Source     Source    `json:"source"`
	Message    *Message  `json:"message,omitempty"`
	Postback   *Postback `json:"postback,omitempty"`
}

type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
}

type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Postback struct {
	Data string `json:"data"`
}

// IsTextMessage reports whether the event carries caregiver text worth
// analyzing.
func (e *Event) IsTextMessage() bool {
	return e.Type == EventTypeMessage &&
		e.Message != nil &&
		e.Message.Type == MessageTypeText &&
		e.ReplyToken != ""
}

// TextMessage is the plain-text reply payload, used for apologies and
// postback answers.
type TextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewTextMessage(text string) TextMessage {
	return TextMessage{Type: "text", Text: text}
}

// replyRequest is the body of POST /v2/bot/message/reply.
type replyRequest struct {
	ReplyToken string            `json:"replyToken"`
	Messages   []json.RawMessage `json:"messages"`
}
