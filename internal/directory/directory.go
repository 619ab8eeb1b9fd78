// Package directory provides the conversation lookup that migration and
// receipt ingestion use to turn external identifiers (phone numbers,
// account IDs) into stable conversation IDs. It is an in-memory snapshot
// so lookups are pure and synchronous; callers refresh it when the
// conversation set changes.
package directory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/juanlucasl/sendtrack/internal/storage"
)

type Directory struct {
	mu           sync.RWMutex
	byIdentifier map[string]string
}

func New() *Directory {
	return &Directory{byIdentifier: map[string]string{}}
}

// Load builds a directory from the stored conversation set.
func Load(ctx context.Context, store storage.Storage) (*Directory, error) {
	d := New()
	if err := d.Refresh(ctx, store); err != nil {
		return nil, err
	}
	return d, nil
}

// Refresh replaces the snapshot with the current stored conversation set.
func (d *Directory) Refresh(ctx context.Context, store storage.Storage) error {
	conversations, err := store.ListConversations(ctx)
	if err != nil {
		return err
	}
	next := make(map[string]string, len(conversations))
	for _, c := range conversations {
		next[normalize(c.Identifier)] = c.ID
	}
	d.mu.Lock()
	d.byIdentifier = next
	d.mu.Unlock()
	return nil
}

// StartAutoRefresh reloads the snapshot on an interval until ctx is done.
// Covers conversations created outside this process (e.g. by the CLI
// against the same database), which the in-process Add path cannot see.
func (d *Directory) StartAutoRefresh(ctx context.Context, store storage.Storage, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.Refresh(ctx, store); err != nil {
					log.Error().Err(err).Msg("directory refresh failed")
				}
			}
		}
	}()
}

// Add registers a single conversation without a full reload.
func (d *Directory) Add(identifier, conversationID string) {
	key := normalize(identifier)
	if key == "" {
		return
	}
	d.mu.Lock()
	d.byIdentifier[key] = conversationID
	d.mu.Unlock()
}

// Resolve maps an identifier to a conversation ID. Unknown or empty
// identifiers return ok=false. Total over all inputs, never fails.
func (d *Directory) Resolve(identifier string) (string, bool) {
	key := normalize(identifier)
	if key == "" {
		return "", false
	}
	d.mu.RLock()
	id, ok := d.byIdentifier[key]
	d.mu.RUnlock()
	return id, ok
}

func normalize(identifier string) string {
	return strings.TrimSpace(identifier)
}
