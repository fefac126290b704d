// Package quota computes per-user request quotas against the current
// playlist. Quota state is derived, never stored: it is recomputed from the
// entry store on demand.
package quota

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ayase-lab/karabox/internal/engine/fault"
	"github.com/ayase-lab/karabox/internal/engine/store"
)

// Kind selects how usage is measured.
type Kind string

const (
	KindNone  Kind = "none"  // No quota enforcement
	KindSongs Kind = "songs" // Limit counts entries
	KindTime  Kind = "time"  // Limit sums entry durations (seconds)
)

// Config is the active quota policy.
type Config struct {
	Kind  Kind
	Limit int // Songs for KindSongs, seconds for KindTime. 0 means unlimited.
}

// Usage is a user's computed consumption on one playlist. Free and refused
// entries never count.
type Usage struct {
	Kind  Kind
	Songs int
	Time  time.Duration
	Limit int
}

// Exhausted reports whether the usage already meets or exceeds the limit.
func (u Usage) Exhausted() bool {
	switch u.Kind {
	case KindSongs:
		return u.Limit > 0 && u.Songs >= u.Limit
	case KindTime:
		return u.Limit > 0 && u.Time >= time.Duration(u.Limit)*time.Second
	default:
		return false
	}
}

// Engine computes quota usage and admission decisions.
type Engine struct {
	store store.Store
	cfg   func() Config
}

// NewEngine creates a quota engine. cfg is read per call so policy edits
// take effect immediately.
func NewEngine(st store.Store, cfg func() Config) *Engine {
	return &Engine{store: st, cfg: cfg}
}

// Usage recomputes the user's consumption on the given playlist.
func (e *Engine) Usage(userID, playlistID string) (Usage, error) {
	cfg := e.cfg()
	usage := Usage{Kind: cfg.Kind, Limit: cfg.Limit}

	entries, err := e.store.Entries(playlistID)
	if err != nil {
		return Usage{}, errors.Wrap(err, "failed to read entries")
	}
	for _, entry := range entries {
		if entry.AddedBy != userID || entry.Free || entry.Refused {
			continue
		}
		usage.Songs++
		usage.Time += entry.Duration
	}
	return usage, nil
}

// Check decides admission for a new request of the given duration. Must be
// called again inside the insert critical section: a check outside the
// playlist lock can go stale under concurrent requests.
func (e *Engine) Check(userID, playlistID string, songDuration time.Duration) error {
	cfg := e.cfg()
	if cfg.Kind == KindNone || cfg.Limit <= 0 {
		return nil
	}

	usage, err := e.Usage(userID, playlistID)
	if err != nil {
		return err
	}

	switch cfg.Kind {
	case KindSongs:
		if usage.Songs+1 > cfg.Limit {
			return fault.QuotaExceededf("user %s has %d of %d songs queued", userID, usage.Songs, cfg.Limit)
		}
	case KindTime:
		limit := time.Duration(cfg.Limit) * time.Second
		if usage.Time+songDuration > limit {
			return fault.QuotaExceededf("user %s would exceed the %v playtime limit", userID, limit)
		}
	}
	return nil
}
