package storage

import (
	"context"

	"github.com/juanlucasl/sendtrack/internal/models"
	"github.com/juanlucasl/sendtrack/internal/sendstate"
)

type Storage interface {
	// Conversations
	CreateConversation(ctx context.Context, c *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetConversationByIdentifier(ctx context.Context, identifier string) (*models.Conversation, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)

	// Messages
	CreateMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error)

	// InitSendStates persists a freshly migrated state map, but only if
	// the message still has none; applied=false means another writer got
	// there first and the stored map must be treated as authoritative.
	InitSendStates(ctx context.Context, id string, states sendstate.Map) (applied bool, err error)

	// ApplySendStateEvent folds one event into the stored map as a single
	// atomic read-modify-write, so concurrent events for the same message
	// can never clobber each other. Returns the resulting map, or nil if
	// the message does not exist.
	ApplySendStateEvent(ctx context.Context, id string, ev sendstate.Event) (sendstate.Map, error)

	// ListUnmigrated returns outgoing messages that still lack a
	// normalized send-state map, oldest first.
	ListUnmigrated(ctx context.Context, limit int) ([]models.Message, error)

	// Stats
	GetStats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

type Stats struct {
	TotalConversations int64            `json:"total_conversations"`
	TotalMessages      int64            `json:"total_messages"`
	OutgoingMessages   int64            `json:"outgoing_messages"`
	NormalizedMessages int64            `json:"normalized_messages"`
	UnmigratedMessages int64            `json:"unmigrated_messages"`
	RecipientsByStatus map[string]int64 `json:"recipients_by_status"`
}
