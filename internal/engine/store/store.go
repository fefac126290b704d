// Package store provides the entry store: durable playlist/entry state with
// ordered reads, positional writes and atomic position renumbering.
package store

import (
	"github.com/cockroachdb/errors"

	"github.com/ayase-lab/karabox/internal/domain/playlist"
)

var (
	ErrPlaylistNotFound = errors.New("playlist not found")
	ErrEntryNotFound    = errors.New("entry not found")
	ErrBadPosition      = errors.New("position out of range")
	ErrBadOrder         = errors.New("order is not a permutation of the playlist")
)

// Store is the persistence contract for playlists and their entries. All
// position-changing operations are atomic: either every position update in
// an operation applies, or none do. Positions within a playlist are always
// 1..N, gapless, after any operation returns.
type Store interface {
	// CreatePlaylist stores a new playlist.
	CreatePlaylist(p playlist.Playlist) error
	// UpdatePlaylist rewrites a playlist's editable fields (name, flags).
	UpdatePlaylist(p playlist.Playlist) error
	// DeletePlaylist removes a playlist and all its entries.
	DeletePlaylist(id string) error
	// GetPlaylist returns a playlist with up-to-date derived aggregates.
	GetPlaylist(id string) (playlist.Playlist, error)
	// Playlists returns all playlists.
	Playlists() ([]playlist.Playlist, error)

	// Insert places an entry into its playlist. pos <= 0 appends after the
	// last entry; otherwise entries at >= pos shift up by one first.
	// Returns the stored entry with its assigned position.
	Insert(e playlist.Entry, pos int) (playlist.Entry, error)
	// Move relocates an entry to newPos with a two-phase shift: close the
	// old gap, then open one at the target. Relative order of untouched
	// entries is preserved.
	Move(entryID string, newPos int) error
	// Remove deletes the given entries (possibly across playlists) and
	// renumbers the remainders. All-or-nothing: one unknown ID fails the
	// whole batch.
	Remove(entryIDs []string) error
	// Renumber rewrites positions to 1..N in current order. A repair
	// operation; a consistent store is a no-op.
	Renumber(playlistID string) error
	// Reorder rewrites the playlist to the given total order. orderedIDs
	// must be a permutation of the playlist's entry IDs.
	Reorder(playlistID string, orderedIDs []string) error

	// Entries returns a playlist's entries in position order.
	Entries(playlistID string) ([]playlist.Entry, error)
	// GetEntry returns a single entry.
	GetEntry(entryID string) (playlist.Entry, error)

	// SetPlaying marks an entry as playing and clears the flag from any
	// other entry in the same playlist. Returns the previously playing
	// entry, if any.
	SetPlaying(entryID string) (*playlist.Entry, error)
	// SetFree marks an entry as free (excluded from quota accounting).
	SetFree(entryID string) error
	// SetUpvotes records an entry's distinct upvote count.
	SetUpvotes(entryID string, count int) error
	// SetModeration flips the accepted/refused flags on the given entries.
	SetModeration(entryIDs []string, accepted, refused bool) error
}
