package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"storagepricing/internal/domain/availability"
)

var ErrPrunerNotConfigured = errors.New("workers: pruner requires a store")

// Archiver receives pruned snapshots before they are discarded.
type Archiver interface {
	ArchiveSnapshots(ctx context.Context, snaps []availability.Snapshot, prunedAt time.Time) (objectKey string, err error)
}

// Pruner periodically trims snapshot history older than MaxAge,
// handing each pruned batch to the archiver first. Archive failures
// are logged; the history is already gone from the store by then, so
// the worker keeps running rather than crash the process.
type Pruner struct {
	Store    availability.Store
	Archiver Archiver
	MaxAge   time.Duration
	Interval time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

func (p *Pruner) Run(ctx context.Context) error {
	if p.Store == nil {
		return ErrPrunerNotConfigured
	}
	ticker := time.NewTicker(p.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pruneOnce(ctx)
		}
	}
}

func (p *Pruner) pruneOnce(ctx context.Context) {
	now := p.now()
	cutoff := now.Add(-p.maxAge())
	pruned, err := p.Store.PruneHistory(ctx, cutoff)
	if err != nil {
		p.log().Error("history prune failed", "cutoff", cutoff, "error", err)
		return
	}
	if len(pruned) == 0 {
		return
	}
	p.log().Info("history pruned", "cutoff", cutoff, "count", len(pruned))
	if p.Archiver == nil {
		return
	}
	key, err := p.Archiver.ArchiveSnapshots(ctx, pruned, now)
	if err != nil {
		p.log().Warn("snapshot archive failed, batch dropped", "count", len(pruned), "error", err)
		return
	}
	if key != "" {
		p.log().Info("snapshot batch archived", "key", key)
	}
}

func (p *Pruner) interval() time.Duration {
	if p.Interval <= 0 {
		return time.Hour
	}
	return p.Interval
}

func (p *Pruner) maxAge() time.Duration {
	if p.MaxAge <= 0 {
		return 90 * 24 * time.Hour
	}
	return p.MaxAge
}

func (p *Pruner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *Pruner) log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
