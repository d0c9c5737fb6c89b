package services

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/cargohold/internal/auth"
	"github.com/dmitrijs2005/cargohold/internal/dbx"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/repomanager"
)

// DownloadEvent is one successful crate download waiting to be counted.
type DownloadEvent struct {
	Package string
	Version string
}

// EventRecorder buffers token-usage and download events in memory so the
// request path never opens a write transaction for bookkeeping. The app
// flushes the buffer periodically; a crash loses at most one flush interval
// of counters.
type EventRecorder struct {
	mu         sync.Mutex
	tokenUses  []auth.TokenUsage
	downloads  []DownloadEvent
	pool       *dbx.RWPool
	repmanager repomanager.RepositoryManager
}

func NewEventRecorder(pool *dbx.RWPool, m repomanager.RepositoryManager) *EventRecorder {
	return &EventRecorder{pool: pool, repmanager: m}
}

// RecordTokenUse notes that a token authenticated successfully.
func (r *EventRecorder) RecordTokenUse(kind auth.TokenKind, tokenID int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokenUses = append(r.tokenUses, auth.TokenUsage{Kind: kind, TokenID: tokenID, Timestamp: at})
}

// RecordDownload notes one successful download of a crate version.
func (r *EventRecorder) RecordDownload(pkg string, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads = append(r.downloads, DownloadEvent{Package: pkg, Version: version})
}

// Flush writes the buffered events through one write transaction. When the
// transaction fails the events are put back, so they are not lost to a
// transient database error.
func (r *EventRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	tokenUses := r.tokenUses
	downloads := r.downloads
	r.tokenUses = nil
	r.downloads = nil
	r.mu.Unlock()

	if len(tokenUses) == 0 && len(downloads) == 0 {
		return nil
	}

	// Keep only the newest use per token and aggregate download counts, so
	// the flush issues one statement per distinct row.
	lastUse := make(map[auth.TokenUsage]time.Time)
	for _, use := range tokenUses {
		key := auth.TokenUsage{Kind: use.Kind, TokenID: use.TokenID}
		if use.Timestamp.After(lastUse[key]) {
			lastUse[key] = use.Timestamp
		}
	}
	counts := make(map[DownloadEvent]int64)
	for _, d := range downloads {
		counts[d]++
	}

	err := r.pool.RunInWriteTransaction(ctx, "flush_events", func(ctx context.Context, tx dbx.DBTX) error {
		tokensRepo := r.repmanager.Tokens(tx)
		packagesRepo := r.repmanager.Packages(tx)

		for key, at := range lastUse {
			if err := tokensRepo.TouchLastUsed(ctx, key.Kind, key.TokenID, at); err != nil {
				return err
			}
		}
		for d, count := range counts {
			if err := packagesRepo.IncrementDownloadCount(ctx, d.Package, d.Version, count); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		r.mu.Lock()
		r.tokenUses = append(tokenUses, r.tokenUses...)
		r.downloads = append(downloads, r.downloads...)
		r.mu.Unlock()
		return err
	}

	return nil
}

// Run flushes the buffer on every tick until the context is cancelled, then
// makes a final flush so shutdown does not drop events.
func (r *EventRecorder) Run(ctx context.Context, interval time.Duration, onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil && onError != nil {
				onError(err)
			}
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.Flush(flushCtx); err != nil && onError != nil {
				onError(err)
			}
			return
		}
	}
}
