package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/juanlucasl/sendtrack/internal/backfill"
	"github.com/juanlucasl/sendtrack/internal/directory"
	"github.com/juanlucasl/sendtrack/internal/models"
	"github.com/juanlucasl/sendtrack/internal/sendstate"
	"github.com/juanlucasl/sendtrack/internal/storage"
)

type MessageHandler struct {
	store             storage.Storage
	dir               *directory.Directory
	ourConversationID string
	log               zerolog.Logger
}

func NewMessageHandler(store storage.Storage, dir *directory.Directory, ourConversationID string, log zerolog.Logger) *MessageHandler {
	return &MessageHandler{store: store, dir: dir, ourConversationID: ourConversationID, log: log}
}

type sendMessageRequest struct {
	ConversationID string   `json:"conversation_id"`
	Body           string   `json:"body"`
	Recipients     []string `json:"recipients"` // recipient conversation IDs
}

const maxBodySize = 256 * 1024 // 256KB

// Send creates an outgoing message with every recipient seeded Pending.
// The delivery transport reports progress through the receipts endpoint.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}
	if len(req.Recipients) == 0 {
		writeError(w, http.StatusBadRequest, "at least one recipient is required")
		return
	}

	conversation, err := h.store.GetConversation(r.Context(), req.ConversationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to look up conversation")
		return
	}
	if conversation == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	now := time.Now().UTC()
	sentAt := now
	states := sendstate.Map{}
	for _, recipientID := range req.Recipients {
		states[recipientID] = sendstate.RecipientState{
			Status:    sendstate.StatusPending,
			UpdatedAt: &sentAt,
		}
	}

	msg := &models.Message{
		ID:             models.NewID("msg"),
		ConversationID: req.ConversationID,
		Direction:      models.DirectionOutgoing,
		Body:           req.Body,
		SentAt:         now,
		SendStates:     states,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.store.CreateMessage(r.Context(), msg); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Get returns one message. A legacy outgoing message that still lacks
// normalized send state is migrated and persisted on first load, so the
// response is indistinguishable from one built by live updates.
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msg, err := h.store.GetMessage(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get message")
		return
	}
	if msg == nil {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}

	migrated, err := backfill.MigrateMessage(r.Context(), h.store, h.dir.Resolve, h.ourConversationID, msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to migrate send states")
		return
	}
	if migrated {
		h.log.Info().
			Str("message_id", msg.ID).
			Int("recipients", len(msg.SendStates)).
			Msg("lazily migrated legacy send state")
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	msgs, err := h.store.ListMessages(r.Context(), conversationID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}
