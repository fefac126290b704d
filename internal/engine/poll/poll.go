// Package poll provides the song poll: a timed, single-winner vote over a
// sampled subset of upcoming entries, driven by playback signals.
package poll

import (
	"math/rand"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/ayase-lab/karabox/internal/engine/fault"
)

// State is the poll lifecycle state.
type State int

const (
	StateIdle State = iota // No poll running
	StateOpen              // Accepting votes until the deadline
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Candidate is one entry eligible for sampling.
type Candidate struct {
	EntryID string
	SongID  string
	Title   string
}

// Option is a sampled candidate with its running tally.
type Option struct {
	Candidate
	Votes int
}

// Result is the resolved poll outcome.
type Result struct {
	Winner Option
}

// Config holds poll parameters.
type Config struct {
	Choices int           // Sample size bound
	Timeout time.Duration // Voting window
}

// Engine runs the poll state machine. A single logical timer is armed per
// poll; superseding a poll bumps a monotonically increasing epoch, so a late
// timeout from a stale poll compares epochs and becomes a no-op.
type Engine struct {
	mu sync.Mutex

	state    State
	epoch    uint64
	options  []Option
	voters   map[string]struct{}
	deadline time.Time
	timer    *time.Timer

	rng    *rand.Rand
	cfg    func() Config
	online func() int

	// Callbacks into the coordinator; invoked outside the lock.
	promote   func(entryID string) error
	onStarted func([]Option)
	onEnded   func(Result)
}

// NewEngine creates an idle poll engine.
func NewEngine(
	cfg func() Config,
	online func() int,
	rng *rand.Rand,
	promote func(entryID string) error,
	onStarted func([]Option),
	onEnded func(Result),
) *Engine {
	return &Engine{
		state:     StateIdle,
		voters:    make(map[string]struct{}),
		rng:       rng,
		cfg:       cfg,
		online:    online,
		promote:   promote,
		onStarted: onStarted,
		onEnded:   onEnded,
	}
}

// SongStarted opens a new poll over a random sample of the candidates.
// An already-open poll is superseded silently: its deadline token goes
// stale and is ignored when the old timer fires.
func (e *Engine) SongStarted(candidates []Candidate) {
	e.mu.Lock()

	e.epoch++
	e.stopTimerLocked()

	cfg := e.cfg()
	sample := e.sampleLocked(candidates, cfg.Choices)
	if len(sample) == 0 {
		e.state = StateIdle
		e.options = nil
		e.mu.Unlock()
		return
	}

	e.options = make([]Option, len(sample))
	for i, c := range sample {
		e.options[i] = Option{Candidate: c}
	}
	e.voters = make(map[string]struct{})
	e.state = StateOpen
	e.deadline = time.Now().Add(cfg.Timeout)

	epoch := e.epoch
	e.timer = time.AfterFunc(cfg.Timeout, func() {
		e.expire(epoch)
	})

	started := append([]Option(nil), e.options...)
	e.mu.Unlock()

	zlog.Debug().Msgf("poll opened with %d choices, closes in %v", len(started), cfg.Timeout)
	if e.onStarted != nil {
		e.onStarted(started)
	}
}

// AddVote records one vote. Each voter votes once per poll, and only for a
// sampled entry.
func (e *Engine) AddVote(entryID, voterID string) error {
	e.mu.Lock()

	if e.state != StateOpen {
		e.mu.Unlock()
		return fault.Policyf("no poll is open")
	}
	if _, dup := e.voters[voterID]; dup {
		e.mu.Unlock()
		return fault.Policyf("user %s already voted in this poll", voterID)
	}

	idx := -1
	for i := range e.options {
		if e.options[i].EntryID == entryID {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return fault.NotFoundf("entry %s is not part of the poll", entryID)
	}

	e.voters[voterID] = struct{}{}
	e.options[idx].Votes++

	// Full consensus: once every online voter has spoken there is nothing
	// left to wait for.
	if online := e.online(); online > 0 && len(e.voters) >= online {
		e.resolveLocked()
		return nil
	}
	e.mu.Unlock()
	return nil
}

// SongAboutToEnd resolves an open poll early, before the playing song runs
// out.
func (e *Engine) SongAboutToEnd() {
	e.mu.Lock()
	if e.state != StateOpen {
		e.mu.Unlock()
		return
	}
	e.resolveLocked()
}

// PlaybackStopped aborts an open poll without promoting a winner.
func (e *Engine) PlaybackStopped() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.epoch++
	e.stopTimerLocked()
	e.state = StateIdle
	e.options = nil
}

// Snapshot returns the current state, tallies and deadline.
func (e *Engine) Snapshot() (State, []Option, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, append([]Option(nil), e.options...), e.deadline
}

// expire handles the timeout timer. A stale epoch means the poll it was
// armed for has been superseded or aborted.
func (e *Engine) expire(epoch uint64) {
	e.mu.Lock()
	if epoch != e.epoch || e.state != StateOpen {
		e.mu.Unlock()
		return
	}
	e.resolveLocked()
}

// resolveLocked picks the winner, promotes it and returns to idle. Must be
// called with the lock held; releases it.
func (e *Engine) resolveLocked() {
	e.epoch++
	e.stopTimerLocked()

	best := 0
	for _, o := range e.options {
		if o.Votes > best {
			best = o.Votes
		}
	}
	var tied []Option
	for _, o := range e.options {
		if o.Votes == best {
			tied = append(tied, o)
		}
	}
	winner := tied[e.rng.Intn(len(tied))]

	e.state = StateIdle
	e.options = nil
	e.mu.Unlock()

	if e.promote != nil {
		if err := e.promote(winner.EntryID); err != nil {
			zlog.Error().Msgf("failed to promote poll winner %s: %v", winner.EntryID, err)
		}
	}
	if e.onEnded != nil {
		e.onEnded(Result{Winner: winner})
	}
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// sampleLocked draws up to n candidates uniformly without replacement.
func (e *Engine) sampleLocked(candidates []Candidate, n int) []Candidate {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	if len(candidates) <= n {
		return append([]Candidate(nil), candidates...)
	}
	perm := e.rng.Perm(len(candidates))
	result := make([]Candidate, 0, n)
	for _, i := range perm[:n] {
		result = append(result, candidates[i])
	}
	return result
}
