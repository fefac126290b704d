// Package playlist provides the Playlist and Entry domain entities.
package playlist

import "time"

// Playlist represents an ordered list of song requests.
type Playlist struct {
	ID              string        // Playlist UUID
	Name            string        // Playlist name
	Owner           string        // User ID of the creator
	Current         bool          // Actively played list (exactly one system-wide)
	Public          bool          // Open to participant requests (exactly one system-wide)
	Visible         bool          // Shown to participants
	AllowDuplicates bool          // Permit the same song more than once
	AutoSortLikes   bool          // Keep entries ordered by upvotes after each vote
	Duration        time.Duration // Derived: summed duration of playable entries
	EntryCount      int           // Derived: number of entries
	CreatedAt       time.Time     // Creation time
	ModifiedAt      time.Time     // Last structural change
}

// Entry represents one song instance placed into a playlist, distinct from
// the song itself.
type Entry struct {
	ID          string        // Entry UUID
	PlaylistID  string        // Owning playlist
	SongID      string        // Referenced song (external library)
	Position    int           // 1-based, unique and gapless within the playlist
	AddedBy     string        // Requesting user ID
	AddedAt     time.Time     // Request time
	Duration    time.Duration // Song duration captured at insert time
	Playing     bool          // At most one true per playlist
	Free        bool          // Excluded from quota accounting
	Visible     bool          // Shown to participants
	Accepted    bool          // Public-submission moderation: approved
	Refused     bool          // Public-submission moderation: rejected
	UpvoteCount int           // Distinct active upvotes
}

// Playable reports whether the entry takes part in playback order. Refused
// entries stay stored for the moderation log but are never played.
func (e *Entry) Playable() bool {
	return !e.Refused
}
