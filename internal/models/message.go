package models

import (
	"time"

	"github.com/juanlucasl/sendtrack/internal/legacy"
	"github.com/juanlucasl/sendtrack/internal/sendstate"
)

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Message is one message in a conversation. Outgoing messages carry a
// per-recipient send-state map; messages written before that model existed
// carry only Legacy attributes until they are migrated.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Direction      Direction     `json:"direction"`
	Body           string        `json:"body"`
	SentAt         time.Time     `json:"sent_at"`
	SendStates     sendstate.Map `json:"send_states,omitempty"`
	Legacy         legacy.Record `json:"legacy,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Outgoing reports whether the message was sent by this account.
func (m *Message) Outgoing() bool {
	return m.Direction == DirectionOutgoing
}

// LegacyView adapts the message for the migration entry point.
func (m *Message) LegacyView() legacy.Message {
	return legacy.Message{
		Outgoing: m.Outgoing(),
		SentAt:   m.SentAt,
		States:   m.SendStates,
		Attrs:    m.Legacy,
	}
}
