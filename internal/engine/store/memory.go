package store

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ayase-lab/karabox/internal/domain/playlist"
)

// MemoryStore is the in-memory Store implementation. Each playlist is its
// own serialization domain: a per-playlist mutex guards its entry slice, so
// operations on different playlists proceed concurrently.
type MemoryStore struct {
	mu        sync.RWMutex
	playlists map[string]*playlist.Playlist
	entries   map[string][]*playlist.Entry // playlistID -> entries in position order
	byEntry   map[string]string            // entryID -> playlistID
	locks     map[string]*sync.Mutex       // playlistID -> playlist lock
	order     []string                     // playlist creation order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		playlists: make(map[string]*playlist.Playlist),
		entries:   make(map[string][]*playlist.Entry),
		byEntry:   make(map[string]string),
		locks:     make(map[string]*sync.Mutex),
	}
}

// CreatePlaylist stores a new playlist.
func (s *MemoryStore) CreatePlaylist(p playlist.Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.playlists[p.ID]; ok {
		return errors.Newf("playlist already exists: id=%s", p.ID)
	}
	cp := p
	s.playlists[p.ID] = &cp
	s.entries[p.ID] = nil
	s.locks[p.ID] = &sync.Mutex{}
	s.order = append(s.order, p.ID)
	return nil
}

// UpdatePlaylist rewrites a playlist's editable fields. Derived aggregates
// are kept, not taken from the argument.
func (s *MemoryStore) UpdatePlaylist(p playlist.Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.playlists[p.ID]
	if !ok {
		return errors.Wrapf(ErrPlaylistNotFound, "id=%s", p.ID)
	}
	cur.Name = p.Name
	cur.Owner = p.Owner
	cur.Current = p.Current
	cur.Public = p.Public
	cur.Visible = p.Visible
	cur.AllowDuplicates = p.AllowDuplicates
	cur.AutoSortLikes = p.AutoSortLikes
	cur.ModifiedAt = time.Now()
	return nil
}

// DeletePlaylist removes a playlist and all its entries.
func (s *MemoryStore) DeletePlaylist(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.playlists[id]; !ok {
		return errors.Wrapf(ErrPlaylistNotFound, "id=%s", id)
	}
	for _, e := range s.entries[id] {
		delete(s.byEntry, e.ID)
	}
	delete(s.playlists, id)
	delete(s.entries, id)
	delete(s.locks, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// GetPlaylist returns a playlist copy with current aggregates.
func (s *MemoryStore) GetPlaylist(id string) (playlist.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.playlists[id]
	if !ok {
		return playlist.Playlist{}, errors.Wrapf(ErrPlaylistNotFound, "id=%s", id)
	}
	return *p, nil
}

// Playlists returns all playlists in creation order.
func (s *MemoryStore) Playlists() ([]playlist.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]playlist.Playlist, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, *s.playlists[id])
	}
	return result, nil
}

// Insert places an entry into its playlist at pos (append when pos <= 0).
func (s *MemoryStore) Insert(e playlist.Entry, pos int) (playlist.Entry, error) {
	lock, err := s.playlistLock(e.PlaylistID)
	if err != nil {
		return playlist.Entry{}, err
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[e.PlaylistID]
	if pos <= 0 || pos > len(list)+1 {
		pos = len(list) + 1
	}

	cp := e
	cp.Position = pos

	// Shift entries at >= pos up by one, then splice in.
	list = append(list, nil)
	copy(list[pos:], list[pos-1:])
	list[pos-1] = &cp
	for i := pos; i < len(list); i++ {
		list[i].Position = i + 1
	}

	s.entries[e.PlaylistID] = list
	s.byEntry[cp.ID] = e.PlaylistID
	s.recomputeAggregatesLocked(e.PlaylistID)
	return cp, nil
}

// Move relocates an entry with a two-phase shift.
func (s *MemoryStore) Move(entryID string, newPos int) error {
	s.mu.RLock()
	playlistID, ok := s.byEntry[entryID]
	s.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrEntryNotFound, "id=%s", entryID)
	}

	lock, err := s.playlistLock(playlistID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[playlistID]
	if newPos < 1 || newPos > len(list) {
		return errors.Wrapf(ErrBadPosition, "pos=%d size=%d", newPos, len(list))
	}

	oldIdx := -1
	for i, e := range list {
		if e.ID == entryID {
			oldIdx = i
			break
		}
	}
	if oldIdx < 0 {
		return errors.Wrapf(ErrEntryNotFound, "id=%s", entryID)
	}

	// Phase one: close the gap at the old slot.
	moved := list[oldIdx]
	list = append(list[:oldIdx], list[oldIdx+1:]...)
	// Phase two: open a gap at the target slot and reinsert.
	list = append(list, nil)
	copy(list[newPos:], list[newPos-1:])
	list[newPos-1] = moved

	for i, e := range list {
		e.Position = i + 1
	}
	s.entries[playlistID] = list
	s.recomputeAggregatesLocked(playlistID)
	return nil
}

// Remove deletes entries and renumbers. All-or-nothing per batch.
func (s *MemoryStore) Remove(entryIDs []string) error {
	// A batch may span playlists; take their locks in sorted order so two
	// overlapping batches cannot deadlock.
	locks, err := s.locksForEntries(entryIDs)
	if err != nil {
		return err
	}
	for _, lock := range locks {
		lock.Lock()
	}
	defer func() {
		for _, lock := range locks {
			lock.Unlock()
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-validate the whole batch under the locks before touching anything.
	touched := make(map[string]struct{})
	for _, id := range entryIDs {
		pid, ok := s.byEntry[id]
		if !ok {
			return errors.Wrapf(ErrEntryNotFound, "id=%s", id)
		}
		touched[pid] = struct{}{}
	}

	drop := make(map[string]struct{}, len(entryIDs))
	for _, id := range entryIDs {
		drop[id] = struct{}{}
	}

	for pid := range touched {
		list := s.entries[pid]
		kept := list[:0]
		for _, e := range list {
			if _, gone := drop[e.ID]; gone {
				delete(s.byEntry, e.ID)
				continue
			}
			kept = append(kept, e)
		}
		for i, e := range kept {
			e.Position = i + 1
		}
		s.entries[pid] = kept
		s.recomputeAggregatesLocked(pid)
	}
	return nil
}

// Renumber rewrites positions to 1..N in current order.
func (s *MemoryStore) Renumber(playlistID string) error {
	lock, err := s.playlistLock(playlistID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.entries[playlistID]
	if !ok {
		return errors.Wrapf(ErrPlaylistNotFound, "id=%s", playlistID)
	}
	for i, e := range list {
		e.Position = i + 1
	}
	s.recomputeAggregatesLocked(playlistID)
	return nil
}

// Reorder rewrites the playlist to the given total order.
func (s *MemoryStore) Reorder(playlistID string, orderedIDs []string) error {
	lock, err := s.playlistLock(playlistID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[playlistID]
	if len(orderedIDs) != len(list) {
		return errors.Wrapf(ErrBadOrder, "got %d ids, playlist has %d entries", len(orderedIDs), len(list))
	}
	byID := make(map[string]*playlist.Entry, len(list))
	for _, e := range list {
		byID[e.ID] = e
	}

	next := make([]*playlist.Entry, 0, len(list))
	for i, id := range orderedIDs {
		e, ok := byID[id]
		if !ok {
			return errors.Wrapf(ErrBadOrder, "unknown entry id=%s", id)
		}
		delete(byID, id)
		e.Position = i + 1
		next = append(next, e)
	}

	s.entries[playlistID] = next
	s.recomputeAggregatesLocked(playlistID)
	return nil
}

// Entries returns a playlist's entries in position order.
func (s *MemoryStore) Entries(playlistID string) ([]playlist.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.entries[playlistID]
	if !ok {
		return nil, errors.Wrapf(ErrPlaylistNotFound, "id=%s", playlistID)
	}
	result := make([]playlist.Entry, len(list))
	for i, e := range list {
		result[i] = *e
	}
	return result, nil
}

// GetEntry returns a single entry copy.
func (s *MemoryStore) GetEntry(entryID string) (playlist.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.entryLocked(entryID)
	if err != nil {
		return playlist.Entry{}, err
	}
	return *e, nil
}

// SetPlaying marks an entry playing and clears the flag from the rest of its
// playlist. Returns the previously playing entry, if any.
func (s *MemoryStore) SetPlaying(entryID string) (*playlist.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.entryLocked(entryID)
	if err != nil {
		return nil, err
	}

	var prev *playlist.Entry
	for _, e := range s.entries[target.PlaylistID] {
		if e.Playing && e.ID != entryID {
			e.Playing = false
			cp := *e
			prev = &cp
		}
	}
	target.Playing = true
	return prev, nil
}

// SetFree marks an entry as free.
func (s *MemoryStore) SetFree(entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entryLocked(entryID)
	if err != nil {
		return err
	}
	e.Free = true
	return nil
}

// SetUpvotes records an entry's distinct upvote count.
func (s *MemoryStore) SetUpvotes(entryID string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entryLocked(entryID)
	if err != nil {
		return err
	}
	e.UpvoteCount = count
	return nil
}

// SetModeration flips the accepted/refused flags on the given entries.
// All-or-nothing per batch.
func (s *MemoryStore) SetModeration(entryIDs []string, accepted, refused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	targets := make([]*playlist.Entry, 0, len(entryIDs))
	for _, id := range entryIDs {
		e, err := s.entryLocked(id)
		if err != nil {
			return err
		}
		targets = append(targets, e)
	}
	touched := make(map[string]struct{})
	for _, e := range targets {
		e.Accepted = accepted
		e.Refused = refused
		touched[e.PlaylistID] = struct{}{}
	}
	for pid := range touched {
		s.recomputeAggregatesLocked(pid)
	}
	return nil
}

func (s *MemoryStore) entryLocked(entryID string) (*playlist.Entry, error) {
	pid, ok := s.byEntry[entryID]
	if !ok {
		return nil, errors.Wrapf(ErrEntryNotFound, "id=%s", entryID)
	}
	for _, e := range s.entries[pid] {
		if e.ID == entryID {
			return e, nil
		}
	}
	return nil, errors.Wrapf(ErrEntryNotFound, "id=%s", entryID)
}

func (s *MemoryStore) playlistLock(playlistID string) (*sync.Mutex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lock, ok := s.locks[playlistID]
	if !ok {
		return nil, errors.Wrapf(ErrPlaylistNotFound, "id=%s", playlistID)
	}
	return lock, nil
}

// locksForEntries resolves the playlist locks covering a batch of entries,
// deduplicated and sorted by playlist ID for a stable acquisition order.
// Membership can change before the locks are taken; callers re-validate.
func (s *MemoryStore) locksForEntries(entryIDs []string) ([]*sync.Mutex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pids := make(map[string]struct{})
	for _, id := range entryIDs {
		pid, ok := s.byEntry[id]
		if !ok {
			return nil, errors.Wrapf(ErrEntryNotFound, "id=%s", id)
		}
		pids[pid] = struct{}{}
	}

	sorted := make([]string, 0, len(pids))
	for pid := range pids {
		sorted = append(sorted, pid)
	}
	sort.Strings(sorted)

	result := make([]*sync.Mutex, 0, len(sorted))
	for _, pid := range sorted {
		if lock, ok := s.locks[pid]; ok {
			result = append(result, lock)
		}
	}
	return result, nil
}

// recomputeAggregatesLocked refreshes the derived duration and entry count.
// Must be called with s.mu held.
func (s *MemoryStore) recomputeAggregatesLocked(playlistID string) {
	p, ok := s.playlists[playlistID]
	if !ok {
		return
	}
	var total time.Duration
	for _, e := range s.entries[playlistID] {
		if e.Playable() {
			total += e.Duration
		}
	}
	p.Duration = total
	p.EntryCount = len(s.entries[playlistID])
	p.ModifiedAt = time.Now()
}
