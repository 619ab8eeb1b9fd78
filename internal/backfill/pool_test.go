package backfill

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanlucasl/sendtrack/internal/config"
	"github.com/juanlucasl/sendtrack/internal/directory"
	"github.com/juanlucasl/sendtrack/internal/legacy"
	"github.com/juanlucasl/sendtrack/internal/models"
	"github.com/juanlucasl/sendtrack/internal/sendstate"
	"github.com/juanlucasl/sendtrack/internal/storage"
)

type fixture struct {
	store storage.Storage
	dir   *directory.Directory
	ourID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "backfill.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	now := time.Now().UTC()
	create := func(id, identifier string) {
		require.NoError(t, store.CreateConversation(ctx, &models.Conversation{
			ID: id, Identifier: identifier, CreatedAt: now, UpdatedAt: now,
		}))
	}
	create("cnv_me", "+15550000")
	create("cnv_alice", "+15550001")
	create("cnv_bob", "+15550002")

	dir, err := directory.Load(ctx, store)
	require.NoError(t, err)

	return &fixture{store: store, dir: dir, ourID: "cnv_me"}
}

func (f *fixture) addLegacyMessage(t *testing.T, id string, attrs legacy.Record) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, f.store.CreateMessage(context.Background(), &models.Message{
		ID: id, ConversationID: "cnv_alice",
		Direction: models.DirectionOutgoing,
		SentAt:    now.Add(-24 * time.Hour),
		Legacy:    attrs,
		CreatedAt: now, UpdatedAt: now,
	}))
}

func TestRunOnceMigratesAllLegacyMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addLegacyMessage(t, "msg_1", legacy.Record{
		"recipients": []any{"+15550001", "+15550002"},
		"sent_to":    []any{"+15550001"},
		"read_by":    []any{"+15550002"},
		"sent":       true,
	})
	f.addLegacyMessage(t, "msg_2", legacy.Record{
		"recipients": []any{"+15550001"},
		"errors":     []any{map[string]any{"number": "+15550001"}},
		"sent":       false,
	})

	pool := NewPool(config.BackfillConfig{Workers: 2, BatchSize: 1}, f.store, f.dir, f.ourID, zerolog.Nop())
	migrated, err := pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, migrated)

	msg1, err := f.store.GetMessage(ctx, "msg_1")
	require.NoError(t, err)
	assert.Equal(t, sendstate.StatusSent, msg1.SendStates["cnv_alice"].Status)
	assert.Equal(t, sendstate.StatusRead, msg1.SendStates["cnv_bob"].Status)
	assert.Equal(t, sendstate.StatusSent, msg1.SendStates["cnv_me"].Status)

	msg2, err := f.store.GetMessage(ctx, "msg_2")
	require.NoError(t, err)
	assert.Equal(t, sendstate.StatusFailed, msg2.SendStates["cnv_alice"].Status)
	assert.Equal(t, sendstate.StatusFailed, msg2.SendStates["cnv_me"].Status)

	left, err := f.store.ListUnmigrated(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, left)

	// Second pass finds nothing to do.
	migrated, err = pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, migrated)
}

func TestMigrateMessageSkipsNormalized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	msg := &models.Message{
		ID: "msg_done", ConversationID: "cnv_alice",
		Direction:  models.DirectionOutgoing,
		SentAt:     now,
		SendStates: sendstate.Map{"cnv_alice": {Status: sendstate.StatusRead}},
		Legacy:     legacy.Record{"sent": false},
		CreatedAt:  now, UpdatedAt: now,
	}
	require.NoError(t, f.store.CreateMessage(ctx, msg))

	ok, err := MigrateMessage(ctx, f.store, f.dir.Resolve, f.ourID, msg)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := f.store.GetMessage(ctx, "msg_done")
	require.NoError(t, err)
	assert.Equal(t, sendstate.StatusRead, got.SendStates["cnv_alice"].Status)
}

func TestPoolStartStop(t *testing.T) {
	f := newFixture(t)

	f.addLegacyMessage(t, "msg_bg", legacy.Record{
		"recipients": []any{"+15550001"},
		"sent":       true,
	})

	pool := NewPool(config.BackfillConfig{Workers: 1, BatchSize: 10, Interval: 10 * time.Millisecond},
		f.store, f.dir, f.ourID, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		left, err := f.store.ListUnmigrated(ctx, 1)
		return err == nil && len(left) == 0
	}, 2*time.Second, 20*time.Millisecond)

	pool.Stop()
}
