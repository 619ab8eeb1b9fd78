package models

import "time"

// Conversation is a contact or group that can send and receive messages.
// Identifier is the external address (phone number or account ID) that
// legacy data references; ID is the stable internal key.
type Conversation struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
