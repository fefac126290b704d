// Package coordinator ties the engine components together behind one façade.
// It owns the current/public singleton invariants, serializes the composite
// admission checks around entry insertion, and emits change notifications
// after every successful mutation.
package coordinator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/ayase-lab/karabox/internal/app/notification"
	"github.com/ayase-lab/karabox/internal/domain/playlist"
	"github.com/ayase-lab/karabox/internal/domain/song"
	"github.com/ayase-lab/karabox/internal/domain/user"
	"github.com/ayase-lab/karabox/internal/engine/criteria"
	"github.com/ayase-lab/karabox/internal/engine/fault"
	"github.com/ayase-lab/karabox/internal/engine/poll"
	"github.com/ayase-lab/karabox/internal/engine/quota"
	"github.com/ayase-lab/karabox/internal/engine/shuffle"
	"github.com/ayase-lab/karabox/internal/engine/store"
	"github.com/ayase-lab/karabox/internal/engine/vote"
)

// Config is the coordinator's live policy view. It is read per operation so
// runtime edits take effect without a restart.
type Config struct {
	Quota        quota.Config
	Upvotes      vote.Config
	Poll         poll.Config
	DejavuWindow time.Duration // Reject re-requests of songs played this recently; 0 disables
}

// Coordinator is the single entry point for every queue mutation.
type Coordinator struct {
	store store.Store
	lib   song.Library
	users *user.Registry
	sets  *criteria.Sets
	quota *quota.Engine
	votes *vote.Engine
	polls *poll.Engine
	bus   *notification.Bus
	cfg   func() Config

	rngMu sync.Mutex
	rng   *rand.Rand

	mu        sync.RWMutex
	locks     map[string]*sync.Mutex // per-playlist admission locks
	currentID string
	publicID  string
}

// New wires a coordinator over the given store and collaborators.
func New(st store.Store, lib song.Library, users *user.Registry, bus *notification.Bus, cfg func() Config, rng *rand.Rand) *Coordinator {
	c := &Coordinator{
		store: st,
		lib:   lib,
		users: users,
		sets:  criteria.NewSets(),
		bus:   bus,
		cfg:   cfg,
		rng:   rng,
		locks: make(map[string]*sync.Mutex),
	}
	c.quota = quota.NewEngine(st, func() quota.Config { return cfg().Quota })
	c.votes = vote.NewEngine(st, c.PublicPlaylistID, users.OnlineCount, func() vote.Config { return cfg().Upvotes })
	c.polls = poll.NewEngine(
		func() poll.Config { return cfg().Poll },
		users.OnlineCount,
		rand.New(rand.NewSource(rng.Int63())),
		c.promotePollWinner,
		func(options []poll.Option) {
			bus.Broadcast(notification.Event{Kind: notification.PollStarted, Payload: options})
		},
		func(r poll.Result) {
			bus.Broadcast(notification.Event{Kind: notification.PollEnded, Payload: r})
		},
	)
	return c
}

// Init loads existing playlists and restores the current/public singletons,
// creating a default playlist that carries both roles when the store is empty.
func (c *Coordinator) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	playlists, err := c.store.Playlists()
	if err != nil {
		return errors.Wrap(err, "failed to load playlists")
	}
	for _, p := range playlists {
		c.locks[p.ID] = &sync.Mutex{}
		if p.Current {
			c.currentID = p.ID
		}
		if p.Public {
			c.publicID = p.ID
		}
	}
	if c.currentID != "" && c.publicID != "" {
		return nil
	}

	if len(playlists) == 0 {
		p := playlist.Playlist{
			ID:      uuid.New().String(),
			Name:    "Standard",
			Current: true,
			Public:  true,
			Visible: true,
		}
		if err := c.store.CreatePlaylist(p); err != nil {
			return errors.Wrap(err, "failed to create the default playlist")
		}
		c.locks[p.ID] = &sync.Mutex{}
		c.currentID = p.ID
		c.publicID = p.ID
		zlog.Info().Msgf("created default playlist %s", p.ID)
		return nil
	}

	// Playlists exist but a role is unassigned, e.g. after a partial import.
	// The oldest playlist picks up the missing role.
	p := playlists[0]
	if c.currentID == "" {
		p.Current = true
		c.currentID = p.ID
	}
	if c.publicID == "" {
		p.Public = true
		c.publicID = p.ID
	}
	return errors.Wrap(c.store.UpdatePlaylist(p), "failed to restore playlist roles")
}

// Users returns the connected-user registry.
func (c *Coordinator) Users() *user.Registry { return c.users }

// CurrentPlaylistID returns the ID of the playlist being played.
func (c *Coordinator) CurrentPlaylistID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentID
}

// PublicPlaylistID returns the ID of the playlist open to participants.
func (c *Coordinator) PublicPlaylistID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.publicID
}

// CreatePlaylist stores a new playlist. The current/public roles are never
// granted here; use SetCurrentPlaylist and SetPublicPlaylist.
func (c *Coordinator) CreatePlaylist(p playlist.Playlist) (playlist.Playlist, error) {
	if p.Name == "" {
		return playlist.Playlist{}, fault.Validationf("playlist name must not be empty")
	}
	p.ID = uuid.New().String()
	p.Current = false
	p.Public = false
	if err := c.store.CreatePlaylist(p); err != nil {
		return playlist.Playlist{}, errors.Wrap(err, "failed to create playlist")
	}

	c.mu.Lock()
	c.locks[p.ID] = &sync.Mutex{}
	c.mu.Unlock()

	c.notifyInfo(p.ID)
	return c.Playlist(p.ID)
}

// EditPlaylist rewrites a playlist's editable fields. The current/public
// roles are preserved from the stored state.
func (c *Coordinator) EditPlaylist(p playlist.Playlist) error {
	if p.Name == "" {
		return fault.Validationf("playlist name must not be empty")
	}
	cur, err := c.store.GetPlaylist(p.ID)
	if err != nil {
		return mapStoreErr(err)
	}
	cur.Name = p.Name
	cur.Visible = p.Visible
	cur.AllowDuplicates = p.AllowDuplicates
	cur.AutoSortLikes = p.AutoSortLikes
	if err := c.store.UpdatePlaylist(cur); err != nil {
		return mapStoreErr(err)
	}
	c.notifyInfo(p.ID)
	return nil
}

// DeletePlaylist removes a playlist and its entries. The current and public
// playlists cannot be deleted; reassign the role first.
func (c *Coordinator) DeletePlaylist(id string) error {
	c.mu.Lock()
	if id == c.currentID || id == c.publicID {
		c.mu.Unlock()
		return fault.Policyf("playlist %s holds the current or public role and cannot be deleted", id)
	}
	delete(c.locks, id)
	c.mu.Unlock()

	entries, err := c.store.Entries(id)
	if err != nil {
		return mapStoreErr(err)
	}
	if err := c.store.DeletePlaylist(id); err != nil {
		return mapStoreErr(err)
	}
	for _, e := range entries {
		c.votes.Forget(e.ID)
	}
	c.notifyInfo(id)
	return nil
}

// SetCurrentPlaylist moves the current role to the given playlist. Exactly
// one playlist holds the role at any time.
func (c *Coordinator) SetCurrentPlaylist(id string) error {
	return c.assignRole(id, func(p *playlist.Playlist, on bool) { p.Current = on }, &c.currentID)
}

// SetPublicPlaylist moves the public role to the given playlist.
func (c *Coordinator) SetPublicPlaylist(id string) error {
	return c.assignRole(id, func(p *playlist.Playlist, on bool) { p.Public = on }, &c.publicID)
}

// assignRole swaps a singleton flag from its present holder to the target.
func (c *Coordinator) assignRole(id string, set func(*playlist.Playlist, bool), holder *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := c.store.GetPlaylist(id)
	if err != nil {
		return mapStoreErr(err)
	}
	prevID := *holder
	if prevID == id {
		return nil
	}
	if prevID != "" {
		prev, err := c.store.GetPlaylist(prevID)
		if err != nil {
			return mapStoreErr(err)
		}
		set(&prev, false)
		if err := c.store.UpdatePlaylist(prev); err != nil {
			return mapStoreErr(err)
		}
	}
	set(&next, true)
	if err := c.store.UpdatePlaylist(next); err != nil {
		return mapStoreErr(err)
	}
	*holder = id

	c.notifyInfo(prevID)
	c.notifyInfo(id)
	return nil
}

// Playlist returns one playlist with its derived aggregates.
func (c *Coordinator) Playlist(id string) (playlist.Playlist, error) {
	p, err := c.store.GetPlaylist(id)
	return p, mapStoreErr(err)
}

// Playlists returns every playlist.
func (c *Coordinator) Playlists() ([]playlist.Playlist, error) {
	return c.store.Playlists()
}

// Entries returns a playlist's entries in position order.
func (c *Coordinator) Entries(playlistID string) ([]playlist.Entry, error) {
	entries, err := c.store.Entries(playlistID)
	return entries, mapStoreErr(err)
}

// AddSong admits a song request into a playlist. The request passes the
// criteria denylist, the dejavu window, the duplicate rule and the quota
// before it is stored; operators skip the criteria and quota checks.
// pos <= 0 appends.
func (c *Coordinator) AddSong(playlistID, songID, userID string, pos int) (playlist.Entry, error) {
	if playlistID == "" || songID == "" || userID == "" {
		return playlist.Entry{}, fault.Validationf("playlist, song and user are all required")
	}
	p, err := c.store.GetPlaylist(playlistID)
	if err != nil {
		return playlist.Entry{}, mapStoreErr(err)
	}
	if _, err := c.users.Get(userID); err != nil {
		return playlist.Entry{}, fault.NotFound(err)
	}
	operator := c.users.IsOperator(userID)

	s, err := c.lib.GetSong(songID)
	if err != nil {
		return playlist.Entry{}, fault.NotFound(err)
	}
	if !operator && criteria.Excluded(s, c.sets.Current()) {
		return playlist.Entry{}, fault.Policyf("song %q is excluded by the active criteria", s.Title)
	}

	// The admission checks and the insert must be one critical section, or
	// two concurrent requests could both pass the quota.
	lock := c.playlistLock(playlistID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.checkDejavuLocked(p, s); err != nil {
		return playlist.Entry{}, err
	}
	if !operator {
		if err := c.quota.Check(userID, playlistID, s.Duration); err != nil {
			return playlist.Entry{}, err
		}
	}

	e := playlist.Entry{
		ID:         uuid.New().String(),
		PlaylistID: playlistID,
		SongID:     songID,
		AddedBy:    userID,
		AddedAt:    time.Now(),
		Duration:   s.Duration,
		Visible:    true,
		// Participant requests on the public playlist queue up for
		// operator moderation; everything else is accepted on arrival.
		Accepted: operator || playlistID != c.PublicPlaylistID(),
	}
	inserted, err := c.store.Insert(e, pos)
	if err != nil {
		return playlist.Entry{}, mapStoreErr(err)
	}

	c.notifyContents(playlistID)
	c.notifyQuota(userID)
	return inserted, nil
}

// checkDejavuLocked rejects songs played too recently and, unless the
// playlist allows duplicates, songs already queued in the same playlist.
func (c *Coordinator) checkDejavuLocked(p playlist.Playlist, s song.Song) error {
	if window := c.cfg().DejavuWindow; window > 0 && s.LastPlayedAt != nil {
		if since := time.Since(*s.LastPlayedAt); since < window {
			return fault.Conflictf("song %q played %v ago, inside the %v dejavu window", s.Title, since.Round(time.Second), window)
		}
	}
	if p.AllowDuplicates {
		return nil
	}
	entries, err := c.store.Entries(p.ID)
	if err != nil {
		return mapStoreErr(err)
	}
	for _, e := range entries {
		if e.SongID == s.ID && e.Playable() {
			return fault.Conflictf("song %q is already queued in playlist %s", s.Title, p.ID)
		}
	}
	return nil
}

// MoveEntry relocates an entry within its playlist.
func (c *Coordinator) MoveEntry(entryID string, newPos int) error {
	e, err := c.store.GetEntry(entryID)
	if err != nil {
		return mapStoreErr(err)
	}

	lock := c.playlistLock(e.PlaylistID)
	lock.Lock()
	err = c.store.Move(entryID, newPos)
	lock.Unlock()
	if err != nil {
		return mapStoreErr(err)
	}

	c.notifyContents(e.PlaylistID)
	return nil
}

// RemoveEntries deletes entries, possibly across playlists, all-or-nothing.
// Vote state for the removed entries is dropped.
func (c *Coordinator) RemoveEntries(entryIDs ...string) error {
	if len(entryIDs) == 0 {
		return nil
	}

	playlists := make(map[string]struct{})
	requesters := make(map[string]struct{})
	for _, id := range entryIDs {
		e, err := c.store.GetEntry(id)
		if err != nil {
			return mapStoreErr(err)
		}
		playlists[e.PlaylistID] = struct{}{}
		requesters[e.AddedBy] = struct{}{}
	}

	if err := c.store.Remove(entryIDs); err != nil {
		return mapStoreErr(err)
	}
	c.votes.Forget(entryIDs...)

	for id := range playlists {
		c.notifyContents(id)
	}
	for id := range requesters {
		c.notifyQuota(id)
	}
	return nil
}

// AcceptEntries approves pending public submissions.
func (c *Coordinator) AcceptEntries(entryIDs ...string) error {
	return c.moderate(entryIDs, true, false)
}

// RefuseEntries rejects public submissions. Refused entries stay stored but
// never play and stop counting against their requester's quota.
func (c *Coordinator) RefuseEntries(entryIDs ...string) error {
	return c.moderate(entryIDs, false, true)
}

func (c *Coordinator) moderate(entryIDs []string, accepted, refused bool) error {
	if len(entryIDs) == 0 {
		return nil
	}
	playlists := make(map[string]struct{})
	requesters := make(map[string]struct{})
	for _, id := range entryIDs {
		e, err := c.store.GetEntry(id)
		if err != nil {
			return mapStoreErr(err)
		}
		playlists[e.PlaylistID] = struct{}{}
		requesters[e.AddedBy] = struct{}{}
	}
	if err := c.store.SetModeration(entryIDs, accepted, refused); err != nil {
		return mapStoreErr(err)
	}
	for id := range playlists {
		c.notifyContents(id)
	}
	if refused {
		for id := range requesters {
			c.notifyQuota(id)
		}
	}
	return nil
}

// Shuffle reorders a playlist under the given policy. The playing entry and
// everything before it keep their slots. One notification covers the whole
// reorder.
func (c *Coordinator) Shuffle(playlistID, policy string) error {
	p, err := shuffle.ParsePolicy(policy)
	if err != nil {
		return errors.Mark(err, fault.ErrValidation)
	}

	lock := c.playlistLock(playlistID)
	lock.Lock()
	defer lock.Unlock()

	entries, err := c.store.Entries(playlistID)
	if err != nil {
		return mapStoreErr(err)
	}
	c.rngMu.Lock()
	order, err := shuffle.Order(entries, p, c.rng)
	c.rngMu.Unlock()
	if err != nil {
		return errors.Mark(err, fault.ErrValidation)
	}
	if err := c.store.Reorder(playlistID, order); err != nil {
		return mapStoreErr(err)
	}

	c.notifyContents(playlistID)
	return nil
}

// Upvote casts an upvote on a public-playlist entry. When the vote pushes
// the entry over the free-promotion threshold, the entry stops counting
// against its requester's quota. With the playlist's auto-sort flag on, the
// tail is re-sorted by votes afterwards.
func (c *Coordinator) Upvote(entryID, voterID string) (vote.Result, error) {
	result, err := c.votes.Upvote(entryID, voterID)
	if err != nil {
		return vote.Result{}, err
	}
	c.afterVote(entryID, result)
	return result, nil
}

// Downvote withdraws a previously cast upvote.
func (c *Coordinator) Downvote(entryID, voterID string) (vote.Result, error) {
	result, err := c.votes.Downvote(entryID, voterID)
	if err != nil {
		return vote.Result{}, err
	}
	c.afterVote(entryID, result)
	return result, nil
}

// HasVoted reports whether the voter has an active vote on the entry.
func (c *Coordinator) HasVoted(entryID, voterID string) bool {
	return c.votes.HasVoted(entryID, voterID)
}

func (c *Coordinator) afterVote(entryID string, result vote.Result) {
	e, err := c.store.GetEntry(entryID)
	if err != nil {
		zlog.Warn().Msgf("entry %s vanished after vote: %v", entryID, err)
		return
	}
	p, err := c.store.GetPlaylist(e.PlaylistID)
	if err == nil && p.AutoSortLikes {
		if err := c.autoSort(e.PlaylistID); err != nil {
			zlog.Warn().Msgf("auto-sort of playlist %s failed: %v", e.PlaylistID, err)
		}
	}
	c.notifyContents(e.PlaylistID)
	if result.Freed {
		c.notifyQuota(e.AddedBy)
	}
}

func (c *Coordinator) autoSort(playlistID string) error {
	lock := c.playlistLock(playlistID)
	lock.Lock()
	defer lock.Unlock()

	entries, err := c.store.Entries(playlistID)
	if err != nil {
		return err
	}
	c.rngMu.Lock()
	order, err := shuffle.Order(entries, shuffle.PolicyUpvotes, c.rng)
	c.rngMu.Unlock()
	if err != nil {
		return err
	}
	return c.store.Reorder(playlistID, order)
}

// UserQuota recomputes a user's quota usage on a playlist.
func (c *Coordinator) UserQuota(userID, playlistID string) (quota.Usage, error) {
	usage, err := c.quota.Usage(userID, playlistID)
	return usage, mapStoreErr(err)
}

// SongStarted marks an entry as playing, records the previous song's play
// time for the dejavu window, and opens a poll over the remaining queue.
func (c *Coordinator) SongStarted(entryID string) error {
	prev, err := c.store.SetPlaying(entryID)
	if err != nil {
		return mapStoreErr(err)
	}
	if prev != nil {
		if err := c.lib.TouchLastPlayed(prev.SongID, time.Now()); err != nil {
			zlog.Warn().Msgf("failed to record play time for song %s: %v", prev.SongID, err)
		}
	}

	e, err := c.store.GetEntry(entryID)
	if err != nil {
		return mapStoreErr(err)
	}
	c.notifyContents(e.PlaylistID)

	c.polls.SongStarted(c.pollCandidates())
	return nil
}

// SongAboutToEnd resolves an open poll early so the winner is queued before
// the current song runs out.
func (c *Coordinator) SongAboutToEnd() {
	c.polls.SongAboutToEnd()
}

// PlaybackStopped aborts any open poll without a winner.
func (c *Coordinator) PlaybackStopped() {
	c.polls.PlaybackStopped()
}

// StartPoll opens a poll on demand, outside the playback-driven flow.
func (c *Coordinator) StartPoll() error {
	candidates := c.pollCandidates()
	if len(candidates) == 0 {
		return fault.Policyf("no entries are eligible for a poll")
	}
	c.polls.SongStarted(candidates)
	return nil
}

// PollVote records one poll vote.
func (c *Coordinator) PollVote(entryID, voterID string) error {
	return c.polls.AddVote(entryID, voterID)
}

// PollSnapshot returns the poll state, tallies and deadline.
func (c *Coordinator) PollSnapshot() (poll.State, []poll.Option, time.Time) {
	return c.polls.Snapshot()
}

// pollCandidates gathers the pollable entries: the public and current
// playlists minus the playing entry and anything refused, deduplicated by
// song so one track never competes against itself.
func (c *Coordinator) pollCandidates() []poll.Candidate {
	c.mu.RLock()
	ids := []string{c.publicID}
	if c.currentID != c.publicID {
		ids = append(ids, c.currentID)
	}
	c.mu.RUnlock()

	seen := make(map[string]struct{})
	var result []poll.Candidate
	for _, playlistID := range ids {
		if playlistID == "" {
			continue
		}
		entries, err := c.store.Entries(playlistID)
		if err != nil {
			zlog.Warn().Msgf("failed to read playlist %s for poll candidates: %v", playlistID, err)
			continue
		}
		for _, e := range entries {
			if e.Playing || !e.Playable() {
				continue
			}
			if _, dup := seen[e.SongID]; dup {
				continue
			}
			seen[e.SongID] = struct{}{}

			title := e.SongID
			if s, err := c.lib.GetSong(e.SongID); err == nil {
				title = s.Title
			}
			result = append(result, poll.Candidate{EntryID: e.ID, SongID: e.SongID, Title: title})
		}
	}
	return result
}

// promotePollWinner queues the winning entry right behind the playing entry
// of the current playlist. A winner from another playlist is copied over as
// a free entry; a winner already in the current playlist is moved instead.
func (c *Coordinator) promotePollWinner(entryID string) error {
	e, err := c.store.GetEntry(entryID)
	if err != nil {
		return mapStoreErr(err)
	}
	currentID := c.CurrentPlaylistID()

	lock := c.playlistLock(currentID)
	lock.Lock()
	defer lock.Unlock()

	entries, err := c.store.Entries(currentID)
	if err != nil {
		return mapStoreErr(err)
	}
	pos := nextPlayablePosition(entries)
	if e.PlaylistID == currentID {
		// Moving within the playlist never grows it, so the target stays
		// inside the valid 1..N range.
		if pos > len(entries) {
			pos = len(entries)
		}
		if err := c.store.Move(entryID, pos); err != nil {
			return mapStoreErr(err)
		}
	} else {
		cp := e
		cp.ID = uuid.New().String()
		cp.PlaylistID = currentID
		cp.Playing = false
		cp.Free = true
		cp.Accepted = true
		cp.Refused = false
		if _, err := c.store.Insert(cp, pos); err != nil {
			return mapStoreErr(err)
		}
	}

	zlog.Info().Msgf("poll winner %s queued in playlist %s at position %d", entryID, currentID, pos)
	c.notifyContents(currentID)
	return nil
}

// nextPlayablePosition returns the slot directly after the playing entry,
// or 1 when nothing is playing yet.
func nextPlayablePosition(entries []playlist.Entry) int {
	for _, e := range entries {
		if e.Playing {
			return e.Position + 1
		}
	}
	if len(entries) == 0 {
		return 0
	}
	return 1
}

// CriteriaSets returns every criteria set.
func (c *Coordinator) CriteriaSets() []*criteria.Set { return c.sets.All() }

// CurrentCriteriaSet returns the active set, or nil when none is active.
func (c *Coordinator) CurrentCriteriaSet() *criteria.Set { return c.sets.Current() }

// CreateCriteriaSet creates a named criteria set.
func (c *Coordinator) CreateCriteriaSet(name string, cs []criteria.Criterion) (*criteria.Set, error) {
	if name == "" {
		return nil, fault.Validationf("criteria set name must not be empty")
	}
	for _, criterion := range cs {
		if err := criteria.Validate(criterion); err != nil {
			return nil, errors.Mark(err, fault.ErrValidation)
		}
	}
	return c.sets.Add(name, cs), nil
}

// DeleteCriteriaSet removes a set. The active set cannot be removed.
func (c *Coordinator) DeleteCriteriaSet(id string) error {
	if cur := c.sets.Current(); cur != nil && cur.ID == id {
		return fault.Policyf("criteria set %s is active and cannot be removed", id)
	}
	if err := c.sets.Remove(id); err != nil {
		return mapCriteriaErr(err)
	}
	return nil
}

// ActivateCriteriaSet switches the set filtering new requests.
func (c *Coordinator) ActivateCriteriaSet(id string) error {
	return mapCriteriaErr(c.sets.SetCurrent(id))
}

// AddCriterion appends a criterion to a set.
func (c *Coordinator) AddCriterion(setID string, criterion criteria.Criterion) error {
	err := c.sets.AddCriterion(setID, criterion)
	if errors.Is(err, criteria.ErrUnknownType) {
		return errors.Mark(err, fault.ErrValidation)
	}
	return mapCriteriaErr(err)
}

// RemoveCriterion deletes the criterion at the given index from a set.
func (c *Coordinator) RemoveCriterion(setID string, index int) error {
	return mapCriteriaErr(c.sets.RemoveCriterion(setID, index))
}

// Whitelist returns the songs the active criteria still admit.
func (c *Coordinator) Whitelist() []song.Song {
	return criteria.Whitelist(c.lib, c.sets.Current())
}

// Blacklist returns the songs the active criteria exclude.
func (c *Coordinator) Blacklist() []song.Song {
	return criteria.Blacklist(c.lib, c.sets.Current())
}

func (c *Coordinator) playlistLock(playlistID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[playlistID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[playlistID] = lock
	}
	return lock
}

func (c *Coordinator) notifyContents(playlistID string) {
	c.bus.Broadcast(notification.Event{Kind: notification.PlaylistContentsChanged, PlaylistID: playlistID})
}

func (c *Coordinator) notifyInfo(playlistID string) {
	if playlistID == "" {
		return
	}
	c.bus.Broadcast(notification.Event{Kind: notification.PlaylistInfoChanged, PlaylistID: playlistID})
}

func (c *Coordinator) notifyQuota(userID string) {
	c.bus.Broadcast(notification.Event{Kind: notification.QuotaChanged, UserID: userID})
}

func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrPlaylistNotFound), errors.Is(err, store.ErrEntryNotFound):
		return fault.NotFound(err)
	case errors.Is(err, store.ErrBadPosition), errors.Is(err, store.ErrBadOrder):
		return errors.Mark(err, fault.ErrValidation)
	}
	return err
}

func mapCriteriaErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, criteria.ErrSetNotFound), errors.Is(err, criteria.ErrCriterionNotFound):
		return fault.NotFound(err)
	}
	return err
}
