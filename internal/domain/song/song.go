// Package song provides the Song domain entity and the library lookup interface.
package song

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrSongNotFound is returned when a song ID is unknown to the library.
var ErrSongNotFound = errors.New("song not found")

// TagType classifies a tag attached to a song.
type TagType string

const (
	TagTypeSinger     TagType = "SINGER"
	TagTypeSongwriter TagType = "SONGWRITER"
	TagTypeCreator    TagType = "CREATOR"
	TagTypeLanguage   TagType = "LANGUAGE"
	TagTypeSeries     TagType = "SERIES"
	TagTypeMisc       TagType = "MISC"
)

// Tag is a typed label on a song. The same name may exist under several
// types (a series name can also be a singer name), so identity is the pair.
type Tag struct {
	ID   string  // Tag UUID
	Name string  // Display name
	Type TagType // Declared type
}

// Song represents one karaoke song known to the media library.
type Song struct {
	ID           string        // Song UUID
	Title        string        // Song title
	Tags         []Tag         // Typed tags (singers, series, languages, ...)
	Type         string        // Song kind (OP, ED, AMV, ...)
	Duration     time.Duration // Media duration
	Year         int           // Release year
	LastPlayedAt *time.Time    // Last time the song finished playing (nil if never)
}

// HasTag reports whether the song carries the given tag identity with the
// given declared type.
func (s *Song) HasTag(tagID string, tagType TagType) bool {
	for _, t := range s.Tags {
		if t.ID == tagID && t.Type == tagType {
			return true
		}
	}
	return false
}

// Library is the read-only song lookup consumed by the engine. The real
// media library lives outside this module.
type Library interface {
	// GetSong returns the song with the given ID.
	GetSong(id string) (Song, error)
	// AllSongs returns every song in the library.
	AllSongs() []Song
	// TouchLastPlayed records that the song just played, for dejavu checks.
	TouchLastPlayed(id string, at time.Time) error
}

// MemoryLibrary is an in-memory Library used by tests and the demo server.
type MemoryLibrary struct {
	mu    sync.RWMutex
	songs map[string]Song
	order []string
}

// NewMemoryLibrary creates an empty in-memory library.
func NewMemoryLibrary() *MemoryLibrary {
	return &MemoryLibrary{
		songs: make(map[string]Song),
	}
}

// Put adds or replaces a song.
func (l *MemoryLibrary) Put(s Song) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.songs[s.ID]; !ok {
		l.order = append(l.order, s.ID)
	}
	l.songs[s.ID] = s
}

// GetSong returns the song with the given ID.
func (l *MemoryLibrary) GetSong(id string) (Song, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.songs[id]
	if !ok {
		return Song{}, errors.Wrapf(ErrSongNotFound, "id=%s", id)
	}
	return s, nil
}

// AllSongs returns every song in insertion order.
func (l *MemoryLibrary) AllSongs() []Song {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Song, 0, len(l.order))
	for _, id := range l.order {
		result = append(result, l.songs[id])
	}
	return result
}

// TouchLastPlayed records the last play time of a song.
func (l *MemoryLibrary) TouchLastPlayed(id string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.songs[id]
	if !ok {
		return errors.Wrapf(ErrSongNotFound, "id=%s", id)
	}
	s.LastPlayedAt = &at
	l.songs[id] = s
	return nil
}
