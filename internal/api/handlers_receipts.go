package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/juanlucasl/sendtrack/internal/backfill"
	"github.com/juanlucasl/sendtrack/internal/directory"
	"github.com/juanlucasl/sendtrack/internal/sendstate"
	"github.com/juanlucasl/sendtrack/internal/signing"
	"github.com/juanlucasl/sendtrack/internal/storage"
)

// ReceiptHandler ingests live delivery events from the transport and folds
// them through the send-state reducer. Duplicate and out-of-order receipts
// are safe: the reducer never regresses a recipient's progress.
type ReceiptHandler struct {
	store             storage.Storage
	dir               *directory.Directory
	ourConversationID string
	secret            string
	log               zerolog.Logger
}

func NewReceiptHandler(store storage.Storage, dir *directory.Directory, ourConversationID, secret string, log zerolog.Logger) *ReceiptHandler {
	return &ReceiptHandler{store: store, dir: dir, ourConversationID: ourConversationID, secret: secret, log: log}
}

type receiptRequest struct {
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id"` // conversation ID, if the transport knows it
	Identifier  string `json:"identifier"`   // external identifier, resolved via the directory
	Type        string `json:"type"`         // sent | delivered | read | failed
	Timestamp   string `json:"timestamp"`    // RFC3339, optional
}

var receiptStatuses = map[string]sendstate.DeliveryStatus{
	"sent":      sendstate.StatusSent,
	"delivered": sendstate.StatusDelivered,
	"read":      sendstate.StatusRead,
	"failed":    sendstate.StatusFailed,
}

func (h *ReceiptHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if !h.verifySignature(r, body) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req receiptRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MessageID == "" {
		writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}
	status, ok := receiptStatuses[req.Type]
	if !ok {
		writeError(w, http.StatusBadRequest, "type must be one of: sent, delivered, read, failed")
		return
	}

	recipientID, ok := h.resolveRecipient(req)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown recipient")
		return
	}

	msg, err := h.store.GetMessage(r.Context(), req.MessageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get message")
		return
	}
	if msg == nil {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if !msg.Outgoing() {
		writeError(w, http.StatusConflict, "receipts only apply to outgoing messages")
		return
	}

	// Normalize legacy state first so the receipt folds into the migrated
	// map instead of racing it.
	if _, err := backfill.MigrateMessage(r.Context(), h.store, h.dir.Resolve, h.ourConversationID, msg); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to migrate send states")
		return
	}

	ev := sendstate.Event{RecipientID: recipientID, Status: status}
	if req.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			utc := ts.UTC()
			ev.UpdatedAt = &utc
		}
	}

	// The fold happens inside the store as one atomic read-modify-write;
	// concurrent receipts for other recipients of this message cannot be
	// lost to a stale in-memory snapshot.
	states, err := h.store.ApplySendStateEvent(r.Context(), msg.ID, ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update send states")
		return
	}
	if states == nil {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}

	h.log.Info().
		Str("message_id", msg.ID).
		Str("recipient_id", recipientID).
		Str("status", string(states[recipientID].Status)).
		Msg("receipt applied")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recipient_id": recipientID,
		"state":        states[recipientID],
	})
}

func (h *ReceiptHandler) resolveRecipient(req receiptRequest) (string, bool) {
	if req.RecipientID != "" {
		return req.RecipientID, true
	}
	return h.dir.Resolve(req.Identifier)
}

func (h *ReceiptHandler) verifySignature(r *http.Request, body []byte) bool {
	if h.secret == "" {
		return true
	}
	ts, err := strconv.ParseInt(r.Header.Get("X-Sendtrack-Timestamp"), 10, 64)
	if err != nil {
		return false
	}
	return signing.Verify(h.secret, body, ts, r.Header.Get("X-Sendtrack-Signature"))
}
