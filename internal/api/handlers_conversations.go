package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/juanlucasl/sendtrack/internal/directory"
	"github.com/juanlucasl/sendtrack/internal/models"
	"github.com/juanlucasl/sendtrack/internal/storage"
)

type ConversationHandler struct {
	store storage.Storage
	dir   *directory.Directory
}

func NewConversationHandler(store storage.Storage, dir *directory.Directory) *ConversationHandler {
	return &ConversationHandler{store: store, dir: dir}
}

type createConversationRequest struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
}

func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Identifier == "" {
		writeError(w, http.StatusBadRequest, "identifier is required")
		return
	}

	existing, err := h.store.GetConversationByIdentifier(r.Context(), req.Identifier)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to look up conversation")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "conversation already exists for identifier")
		return
	}

	now := time.Now().UTC()
	c := &models.Conversation{
		ID:         models.NewID("cnv"),
		Identifier: req.Identifier,
		Name:       req.Name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.store.CreateConversation(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	h.dir.Add(c.Identifier, c.ID)

	writeJSON(w, http.StatusCreated, c)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.store.ListConversations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	writeJSON(w, http.StatusOK, conversations)
}
