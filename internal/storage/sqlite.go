package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/juanlucasl/sendtrack/internal/legacy"
	"github.com/juanlucasl/sendtrack/internal/models"
	"github.com/juanlucasl/sendtrack/internal/sendstate"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			identifier TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			direction TEXT NOT NULL DEFAULT 'outgoing',
			body TEXT NOT NULL DEFAULT '',
			sent_at DATETIME NOT NULL,
			send_states TEXT,
			legacy TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_identifier ON conversations(identifier)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unmigrated ON messages(sent_at) WHERE direction = 'outgoing' AND send_states IS NULL`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Conversations ---

func (s *SQLiteStorage) CreateConversation(ctx context.Context, c *models.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, identifier, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Identifier, c.Name, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, identifier, name, created_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.Identifier, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &c, err
}

func (s *SQLiteStorage) GetConversationByIdentifier(ctx context.Context, identifier string) (*models.Conversation, error) {
	var c models.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, identifier, name, created_at, updated_at FROM conversations WHERE identifier = ?`, identifier,
	).Scan(&c.ID, &c.Identifier, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &c, err
}

func (s *SQLiteStorage) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, identifier, name, created_at, updated_at FROM conversations ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.Identifier, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Messages ---

func (s *SQLiteStorage) CreateMessage(ctx context.Context, m *models.Message) error {
	states, err := encodeStates(m.SendStates)
	if err != nil {
		return err
	}
	attrs, err := encodeLegacy(m.Legacy)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, direction, body, sent_at, send_states, legacy, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Direction, m.Body, m.SentAt, states, attrs, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanMessage(row interface{ Scan(...interface{}) error }) (*models.Message, error) {
	var m models.Message
	var direction string
	var states, attrs sql.NullString
	err := row.Scan(&m.ID, &m.ConversationID, &direction, &m.Body, &m.SentAt, &states, &attrs, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Direction = models.Direction(direction)
	if states.Valid && states.String != "" {
		if err := json.Unmarshal([]byte(states.String), &m.SendStates); err != nil {
			return nil, fmt.Errorf("decode send_states for %s: %w", m.ID, err)
		}
	}
	if attrs.Valid && attrs.String != "" {
		// Legacy attributes are of unknown integrity; a corrupt blob reads
		// as no attributes rather than failing the whole load.
		var rec legacy.Record
		if err := json.Unmarshal([]byte(attrs.String), &rec); err == nil {
			m.Legacy = rec
		}
	}
	return &m, nil
}

const messageColumns = `id, conversation_id, direction, body, sent_at, send_states, legacy, created_at, updated_at`

func (s *SQLiteStorage) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := s.scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (s *SQLiteStorage) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY sent_at DESC LIMIT ? OFFSET ?`,
		conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectMessages(rows)
}

func (s *SQLiteStorage) InitSendStates(ctx context.Context, id string, states sendstate.Map) (bool, error) {
	encoded, err := encodeStates(states)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET send_states = ?, updated_at = ? WHERE id = ? AND send_states IS NULL`,
		encoded, time.Now().UTC(), id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStorage) ApplySendStateEvent(ctx context.Context, id string, ev sendstate.Event) (sendstate.Map, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var raw sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT send_states FROM messages WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	states := sendstate.Map{}
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &states); err != nil {
			return nil, fmt.Errorf("decode send_states for %s: %w", id, err)
		}
	}
	states.Apply(ev)

	encoded, err := encodeStates(states)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET send_states = ?, updated_at = ? WHERE id = ?`,
		encoded, time.Now().UTC(), id,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return states, nil
}

func (s *SQLiteStorage) ListUnmigrated(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE direction = 'outgoing' AND send_states IS NULL
		 ORDER BY sent_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectMessages(rows)
}

func (s *SQLiteStorage) collectMessages(rows *sql.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		m, err := s.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// --- Stats ---

func (s *SQLiteStorage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{RecipientsByStatus: map[string]int64{}}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&stats.TotalConversations)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&stats.TotalMessages)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE direction = 'outgoing'`).Scan(&stats.OutgoingMessages)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE direction = 'outgoing' AND send_states IS NOT NULL`).Scan(&stats.NormalizedMessages)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE direction = 'outgoing' AND send_states IS NULL`).Scan(&stats.UnmigratedMessages)

	rows, err := s.db.QueryContext(ctx, `SELECT send_states FROM messages WHERE send_states IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var states sendstate.Map
		if err := json.Unmarshal([]byte(raw), &states); err != nil {
			continue
		}
		for status, n := range states.CountByStatus() {
			stats.RecipientsByStatus[string(status)] += int64(n)
		}
	}
	return stats, rows.Err()
}

func encodeStates(states sendstate.Map) (any, error) {
	if states == nil {
		return nil, nil
	}
	b, err := json.Marshal(states)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func encodeLegacy(rec legacy.Record) (any, error) {
	if rec == nil {
		return nil, nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
