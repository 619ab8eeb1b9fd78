// Package backfill sweeps stored legacy messages through the send-state
// migration. It runs either as a background pool alongside the API server
// or as a one-shot pass from the CLI. Migration of one message is
// independent of every other, so sweeps parallelize freely.
package backfill

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/juanlucasl/sendtrack/internal/config"
	"github.com/juanlucasl/sendtrack/internal/directory"
	"github.com/juanlucasl/sendtrack/internal/legacy"
	"github.com/juanlucasl/sendtrack/internal/models"
	"github.com/juanlucasl/sendtrack/internal/storage"
)

type Pool struct {
	store             storage.Storage
	dir               *directory.Directory
	ourConversationID string
	workers           int
	batchSize         int
	interval          time.Duration
	log               zerolog.Logger
	stop              chan struct{}
	wg                sync.WaitGroup
}

func NewPool(cfg config.BackfillConfig, store storage.Storage, dir *directory.Directory, ourConversationID string, log zerolog.Logger) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &Pool{
		store:             store,
		dir:               dir,
		ourConversationID: ourConversationID,
		workers:           workers,
		batchSize:         batch,
		interval:          interval,
		log:               log,
		stop:              make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.log.Info().Int("workers", p.workers).Msg("starting backfill pool")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pollLoop(ctx)
	}()
}

func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
	p.log.Info().Msg("backfill pool stopped")
}

func (p *Pool) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.sweep(ctx); err != nil {
				p.log.Error().Err(err).Msg("backfill sweep failed")
			}
		}
	}
}

// RunOnce sweeps repeatedly until no unmigrated messages remain and
// returns the number migrated. Used by the CLI backfill command.
func (p *Pool) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := p.sweep(ctx)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			return total, nil
		}
	}
}

// sweep migrates one batch of legacy messages with bounded concurrency.
func (p *Pool) sweep(ctx context.Context) (int, error) {
	messages, err := p.store.ListUnmigrated(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	migrated := 0
	var mu sync.Mutex

	for i := range messages {
		msg := messages[i]
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			ok, err := MigrateMessage(ctx, p.store, p.dir.Resolve, p.ourConversationID, &msg)
			if err != nil {
				p.log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to persist migrated send states")
				return
			}
			if !ok {
				// ListUnmigrated should only return migratable rows.
				p.log.Warn().Str("message_id", msg.ID).Msg("message did not need migration")
				return
			}
			mu.Lock()
			migrated++
			mu.Unlock()
			p.log.Debug().
				Str("message_id", msg.ID).
				Int("recipients", len(msg.SendStates)).
				Msg("migrated legacy send state")
		}()
	}
	wg.Wait()

	p.log.Info().Int("migrated", migrated).Int("batch", len(messages)).Msg("backfill sweep complete")
	return migrated, nil
}

// MigrateMessage runs the legacy migration for one message and persists
// the result, updating msg.SendStates in place. Returns ok=false when the
// message needed no migration; the stored row is left untouched then.
// The write is conditional on the stored map still being absent, so a
// concurrent migration (or a receipt that migrated first) can never be
// overwritten with a stale snapshot.
func MigrateMessage(ctx context.Context, store storage.Storage, resolve legacy.Resolver, ourConversationID string, msg *models.Message) (bool, error) {
	states, ok := legacy.Migrate(msg.LegacyView(), resolve, ourConversationID)
	if !ok {
		return false, nil
	}
	applied, err := store.InitSendStates(ctx, msg.ID, states)
	if err != nil {
		return false, err
	}
	if !applied {
		// Lost the race to another writer; the stored map wins.
		fresh, err := store.GetMessage(ctx, msg.ID)
		if err != nil {
			return false, err
		}
		if fresh != nil {
			msg.SendStates = fresh.SendStates
		}
		return false, nil
	}
	msg.SendStates = states
	return true, nil
}
