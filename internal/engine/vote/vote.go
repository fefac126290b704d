// Package vote provides the upvote engine: per-entry voter sets and the
// free-promotion rule that lifts well-liked entries out of quota accounting.
package vote

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/ayase-lab/karabox/internal/engine/fault"
	"github.com/ayase-lab/karabox/internal/engine/store"
)

// Config is the free-promotion threshold.
type Config struct {
	Percent int // Required share of online voters, 0-100
	Min     int // Required absolute vote count
}

// Result reports the outcome of a vote mutation.
type Result struct {
	Count int  // Distinct active upvotes after the mutation
	Freed bool // True when this vote promoted the entry to free
}

// Engine tracks voter sets per entry. All mutations run under one lock, so
// two simultaneous votes on the same entry cannot double-increment or miss
// the promotion threshold.
type Engine struct {
	mu     sync.Mutex
	voters map[string]map[string]struct{} // entryID -> voter IDs

	store    store.Store
	publicID func() string // Current public playlist
	online   func() int    // Online voter total; best-effort, races connects
	cfg      func() Config
}

// NewEngine creates a vote engine.
func NewEngine(st store.Store, publicID func() string, online func() int, cfg func() Config) *Engine {
	return &Engine{
		voters:   make(map[string]map[string]struct{}),
		store:    st,
		publicID: publicID,
		online:   online,
		cfg:      cfg,
	}
}

// Upvote casts a vote for an entry and promotes it to free once the
// threshold is met. Promotion happens at most once per entry.
func (e *Engine) Upvote(entryID, voterID string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, err := e.store.GetEntry(entryID)
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			return Result{}, fault.NotFound(err)
		}
		return Result{}, err
	}
	if entry.PlaylistID != e.publicID() {
		return Result{}, fault.Policyf("votes only count on the public playlist")
	}
	if entry.AddedBy == voterID {
		return Result{}, fault.Policyf("user %s cannot vote for their own request", voterID)
	}

	set, ok := e.voters[entryID]
	if !ok {
		set = make(map[string]struct{})
		e.voters[entryID] = set
	}
	if _, dup := set[voterID]; dup {
		return Result{}, fault.Policyf("user %s already voted for entry %s", voterID, entryID)
	}
	set[voterID] = struct{}{}

	count := len(set)
	if err := e.store.SetUpvotes(entryID, count); err != nil {
		delete(set, voterID)
		return Result{}, errors.Wrap(err, "failed to record upvote")
	}

	result := Result{Count: count}

	// Re-read after the write: the entry may already be free, and
	// promotion must stay idempotent.
	entry, err = e.store.GetEntry(entryID)
	if err != nil {
		return result, errors.Wrap(err, "failed to re-read entry")
	}
	if !entry.Free && e.thresholdMet(count) {
		if err := e.store.SetFree(entryID); err != nil {
			return result, errors.Wrap(err, "failed to free entry")
		}
		result.Freed = true
		zlog.Info().Msgf("entry %s freed after %d upvotes", entryID, count)
	}
	return result, nil
}

// Downvote withdraws a previously cast vote. Counts never go negative, and
// an already-freed entry stays free.
func (e *Engine) Downvote(entryID, voterID string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.GetEntry(entryID); err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			return Result{}, fault.NotFound(err)
		}
		return Result{}, err
	}

	set := e.voters[entryID]
	if _, ok := set[voterID]; !ok {
		return Result{}, fault.Policyf("user %s has no active vote on entry %s", voterID, entryID)
	}
	delete(set, voterID)

	count := len(set)
	if err := e.store.SetUpvotes(entryID, count); err != nil {
		set[voterID] = struct{}{}
		return Result{}, errors.Wrap(err, "failed to record downvote")
	}
	return Result{Count: count}, nil
}

// Votes returns the distinct active vote count for an entry.
func (e *Engine) Votes(entryID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.voters[entryID])
}

// HasVoted reports whether the voter has an active vote on the entry.
func (e *Engine) HasVoted(entryID, voterID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.voters[entryID][voterID]
	return ok
}

// Forget drops voter state for removed entries.
func (e *Engine) Forget(entryIDs ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range entryIDs {
		delete(e.voters, id)
	}
}

// thresholdMet applies the free-promotion rule against the online total.
// The online count moves as users connect and disconnect; this check is a
// best-effort heuristic, not a consistency guarantee.
func (e *Engine) thresholdMet(count int) bool {
	cfg := e.cfg()
	online := e.online()
	if online <= 0 {
		return false
	}
	return count*100 >= cfg.Percent*online && count >= cfg.Min
}
