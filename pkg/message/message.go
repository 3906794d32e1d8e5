// Package message implements the immutable envelope exchanged over the
// in-process transport fabric: routing metadata plus an opaque typed
// payload. Messages are built once, via Builder, and never mutated.
package message

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// DefaultContentType is applied when a builder does not set one.
const DefaultContentType = "application/json"

// Fabric-level message type tags. Services add their own tags freely and
// receivers must accept unknown types without error.
const (
	TypeAcknowledgment      = "Acknowledgment"
	TypeHeartbeat           = "Heartbeat"
	TypeServiceRegistration = "ServiceRegistration"
	TypeRequest             = "Request"
	TypeResponse            = "Response"
	TypeError               = "Error"
	TypeDebug               = "Debug"
)

// Message is an immutable envelope. The zero value is not usable; construct
// through Builder or Decode.
type Message struct {
	id            string
	msgType       string
	senderID      string
	replyTo       string
	correlationID string
	timestamp     time.Time
	contentType   string
	content       []byte
	headers       map[string]string
	requireAck    bool
}

// ID returns the unique message id, generated once at build time.
func (m *Message) ID() string { return m.id }

// Type returns the free-form routing tag.
func (m *Message) Type() string { return m.msgType }

// SenderID returns the id of the transport or service that built the
// message. May be empty for anonymous messages.
func (m *Message) SenderID() string { return m.senderID }

// ReplyTo returns where replies should be addressed. May be empty.
func (m *Message) ReplyTo() string { return m.replyTo }

// CorrelationID is empty for originals; for replies it equals the
// originating message's id.
func (m *Message) CorrelationID() string { return m.correlationID }

// IsReply reports whether the message correlates to an earlier one.
func (m *Message) IsReply() bool { return m.correlationID != "" }

// Timestamp returns the UTC creation time.
func (m *Message) Timestamp() time.Time { return m.timestamp }

// ContentType returns the MIME-like tag describing the content bytes.
func (m *Message) ContentType() string { return m.contentType }

// Content returns a copy of the payload bytes, nil when there are none.
func (m *Message) Content() []byte {
	if len(m.content) == 0 {
		return nil
	}
	out := make([]byte, len(m.content))
	copy(out, m.content)
	return out
}

// Header returns the header value for key and whether it was present.
func (m *Message) Header(key string) (string, bool) {
	v, ok := m.headers[key]
	return v, ok
}

// Headers returns a copy of all headers.
func (m *Message) Headers() map[string]string {
	out := make(map[string]string, len(m.headers))
	for k, v := range m.headers {
		out[k] = v
	}
	return out
}

// RequireAck reports whether the sender asked for a delivery
// acknowledgement.
func (m *Message) RequireAck() bool { return m.requireAck }

// Equal reports message identity. Equality is by id only.
func (m *Message) Equal(other *Message) bool {
	return m != nil && other != nil && m.id == other.id
}

// Bind decodes the JSON content into v and reports success. It never
// panics; malformed or empty content reports false.
func (m *Message) Bind(v any) bool {
	if m == nil || len(m.content) == 0 {
		return false
	}
	return json.Unmarshal(m.content, v) == nil
}

// Payload decodes the JSON content of m into T. Malformed, empty, or
// missing content yields the zero value of T.
func Payload[T any](m *Message) T {
	var zero T
	if m == nil || len(m.content) == 0 {
		return zero
	}
	var v T
	if err := json.Unmarshal(m.content, &v); err != nil {
		return zero
	}
	return v
}

// Builder assembles a Message. All envelope fields are explicit; Build
// stamps the id and timestamp. A builder may be reused; each Build yields
// an independent message with a fresh id.
type Builder struct {
	msgType       string
	senderID      string
	replyTo       string
	correlationID string
	contentType   string
	content       []byte
	headers       map[string]string
	requireAck    bool
	err           error
}

// NewBuilder starts a builder for the given message type.
func NewBuilder(msgType string) *Builder {
	return &Builder{
		msgType:     msgType,
		contentType: DefaultContentType,
	}
}

// Sender sets the sender id.
func (b *Builder) Sender(id string) *Builder {
	b.senderID = id
	return b
}

// ReplyTo sets the address replies should be sent to.
func (b *Builder) ReplyTo(id string) *Builder {
	b.replyTo = id
	return b
}

// CorrelationID sets the correlation id directly.
func (b *Builder) CorrelationID(id string) *Builder {
	b.correlationID = id
	return b
}

// CorrelatedTo marks the built message as a reply to orig.
func (b *Builder) CorrelatedTo(orig *Message) *Builder {
	if orig != nil {
		b.correlationID = orig.ID()
	}
	return b
}

// ContentType overrides the default content type.
func (b *Builder) ContentType(ct string) *Builder {
	b.contentType = ct
	return b
}

// Content sets the raw payload bytes.
func (b *Builder) Content(raw []byte) *Builder {
	b.content = raw
	return b
}

// JSON serializes v as the payload. A marshalling failure is reported by
// Build.
func (b *Builder) JSON(v any) *Builder {
	raw, err := json.Marshal(v)
	if err != nil {
		b.err = err
		return b
	}
	b.content = raw
	return b
}

// Header adds one header entry.
func (b *Builder) Header(key, value string) *Builder {
	if b.headers == nil {
		b.headers = make(map[string]string)
	}
	b.headers[key] = value
	return b
}

// RequireAck marks the message as requiring a delivery acknowledgement.
func (b *Builder) RequireAck(require bool) *Builder {
	b.requireAck = require
	return b
}

// Build finalizes the message, generating its id and UTC timestamp.
func (b *Builder) Build() (*Message, error) {
	if b.err != nil {
		return nil, b.err
	}

	m := &Message{
		id:            uuid.New().String(),
		msgType:       b.msgType,
		senderID:      b.senderID,
		replyTo:       b.replyTo,
		correlationID: b.correlationID,
		timestamp:     time.Now().UTC(),
		contentType:   b.contentType,
		requireAck:    b.requireAck,
		headers:       make(map[string]string, len(b.headers)),
	}
	for k, v := range b.headers {
		m.headers[k] = v
	}
	if len(b.content) > 0 {
		m.content = make([]byte, len(b.content))
		copy(m.content, b.content)
	}
	return m, nil
}
