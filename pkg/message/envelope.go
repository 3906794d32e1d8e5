package message

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// envelope is the JSON wire form of a Message. All string fields are always
// present (empty serialized as ""), content is base64 and headers is always
// an object.
type envelope struct {
	MessageID              string            `json:"messageId"`
	MessageType            string            `json:"messageType"`
	Timestamp              string            `json:"timestamp"`
	SenderID               string            `json:"senderId"`
	ReplyTo                string            `json:"replyTo"`
	CorrelationID          string            `json:"correlationId"`
	RequireAcknowledgement bool              `json:"requireAcknowledgement"`
	ContentType            string            `json:"contentType"`
	Content                []byte            `json:"content"`
	Headers                map[string]string `json:"headers"`
}

// Encode serializes m to its JSON wire envelope.
func Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("cannot encode nil message")
	}
	env := envelope{
		MessageID:              m.id,
		MessageType:            m.msgType,
		Timestamp:              m.timestamp.UTC().Format(time.RFC3339Nano),
		SenderID:               m.senderID,
		ReplyTo:                m.replyTo,
		CorrelationID:          m.correlationID,
		RequireAcknowledgement: m.requireAck,
		ContentType:            m.contentType,
		Content:                m.content,
		Headers:                m.headers,
	}
	if env.Content == nil {
		env.Content = []byte{}
	}
	if env.Headers == nil {
		env.Headers = map[string]string{}
	}
	return json.Marshal(env)
}

// Decode parses a JSON wire envelope back into a Message. It returns
// explicit errors for malformed envelopes and never panics.
func Decode(data []byte) (*Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid message envelope: %w", err)
	}
	if env.MessageID == "" {
		return nil, fmt.Errorf("message envelope missing messageId")
	}
	ts, err := time.Parse(time.RFC3339Nano, env.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid envelope timestamp %q: %w", env.Timestamp, err)
	}

	m := &Message{
		id:            env.MessageID,
		msgType:       env.MessageType,
		senderID:      env.SenderID,
		replyTo:       env.ReplyTo,
		correlationID: env.CorrelationID,
		timestamp:     ts.UTC(),
		contentType:   env.ContentType,
		requireAck:    env.RequireAcknowledgement,
		headers:       env.Headers,
	}
	if m.headers == nil {
		m.headers = make(map[string]string)
	}
	if len(env.Content) > 0 {
		m.content = env.Content
	}
	return m, nil
}
