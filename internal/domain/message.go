package domain

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders messages; higher values are more urgent.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// String returns the string representation of the priority
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Message is an immutable envelope passed between agents.
type Message struct {
	ID            string                 `json:"id"`
	Sender        string                 `json:"sender"`
	Recipient     string                 `json:"recipient"`
	Type          string                 `json:"message_type"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	Priority      Priority               `json:"priority"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}

// MessageOption customizes a message at construction time.
type MessageOption func(*Message)

// WithPriority sets the message priority.
func WithPriority(p Priority) MessageOption {
	return func(m *Message) { m.Priority = p }
}

// WithCorrelationID links the message to a prior exchange.
func WithCorrelationID(id string) MessageOption {
	return func(m *Message) { m.CorrelationID = id }
}

// NewMessage builds a message with a fresh ID, the current time and NORMAL
// priority. The payload map is copied so later edits by the caller are not
// visible to recipients.
func NewMessage(sender, recipient, msgType string, payload map[string]interface{}, opts ...MessageOption) Message {
	m := Message{
		ID:        uuid.New().String(),
		Sender:    sender,
		Recipient: recipient,
		Type:      msgType,
		Payload:   copyMap(payload),
		Timestamp: time.Now(),
		Priority:  PriorityNormal,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
