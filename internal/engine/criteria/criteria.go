// Package criteria provides the blacklist criteria evaluator.
//
// A criteria set is a denylist: a song is excluded when it matches any
// criterion in the active set. The whitelist is the library minus the
// blacklist. Evaluation is pure with respect to its inputs.
package criteria

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/ayase-lab/karabox/internal/domain/song"
)

var (
	ErrSetNotFound       = errors.New("criteria set not found")
	ErrCriterionNotFound = errors.New("criterion not found")
	ErrUnknownType       = errors.New("unknown criterion type")
)

// Type identifies a criterion kind. The set of types is closed.
type Type string

const (
	TypeTag         Type = "tag"          // Tag identity plus declared tag type
	TypeYear        Type = "year"         // Exact release year
	TypeSong        Type = "song"         // Exact song identity
	TypeLongerThan  Type = "longer_than"  // Duration above a threshold (seconds)
	TypeShorterThan Type = "shorter_than" // Duration below a threshold (seconds)
)

// Criterion is one typed denylist rule.
type Criterion struct {
	Type    Type         `mapstructure:"type"`
	Value   string       `mapstructure:"value"`
	TagType song.TagType `mapstructure:"tag_type"` // Only meaningful for TypeTag
}

// Set is a named, swappable collection of criteria.
type Set struct {
	ID       string
	Name     string
	Criteria []Criterion
}

// FromSettings decodes criteria from loosely-typed settings maps, as loaded
// from the config file.
func FromSettings(settings []map[string]any) ([]Criterion, error) {
	result := make([]Criterion, 0, len(settings))
	for i, raw := range settings {
		var c Criterion
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:  &c,
			TagName: "mapstructure",
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create decoder")
		}
		if err := decoder.Decode(raw); err != nil {
			return nil, errors.Wrapf(err, "failed to decode criterion %d", i)
		}
		if err := Validate(c); err != nil {
			return nil, errors.Wrapf(err, "invalid criterion %d", i)
		}
		result = append(result, c)
	}
	return result, nil
}

// Excluded reports whether the song matches any criterion in the set
// (logical OR). A nil set excludes nothing.
func Excluded(s song.Song, set *Set) bool {
	if set == nil {
		return false
	}
	for _, c := range set.Criteria {
		m, ok := matcherFor(c.Type)
		if !ok {
			continue
		}
		if m.Matches(s, c) {
			return true
		}
	}
	return false
}

// Blacklist returns the songs of the library excluded by the set.
func Blacklist(lib song.Library, set *Set) []song.Song {
	var result []song.Song
	for _, s := range lib.AllSongs() {
		if Excluded(s, set) {
			result = append(result, s)
		}
	}
	return result
}

// Whitelist returns the library minus the blacklist.
func Whitelist(lib song.Library, set *Set) []song.Song {
	var result []song.Song
	for _, s := range lib.AllSongs() {
		if !Excluded(s, set) {
			result = append(result, s)
		}
	}
	return result
}

// Sets holds the editable criteria sets and the reference to the one
// currently filtering the library. Held by the coordinator, never global.
type Sets struct {
	mu        sync.RWMutex
	sets      map[string]*Set
	order     []string
	currentID string
}

// NewSets creates an empty collection.
func NewSets() *Sets {
	return &Sets{
		sets: make(map[string]*Set),
	}
}

// Add creates a new named set and returns it.
func (ss *Sets) Add(name string, criteria []Criterion) *Set {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	set := &Set{ID: uuid.New().String(), Name: name, Criteria: criteria}
	ss.sets[set.ID] = set
	ss.order = append(ss.order, set.ID)
	return set
}

// Remove deletes a set. The current set cannot be removed.
func (ss *Sets) Remove(id string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if _, ok := ss.sets[id]; !ok {
		return errors.Wrapf(ErrSetNotFound, "id=%s", id)
	}
	if ss.currentID == id {
		return errors.Newf("cannot remove the current criteria set: id=%s", id)
	}
	delete(ss.sets, id)
	for i, sid := range ss.order {
		if sid == id {
			ss.order = append(ss.order[:i], ss.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetCurrent switches the active set.
func (ss *Sets) SetCurrent(id string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if _, ok := ss.sets[id]; !ok {
		return errors.Wrapf(ErrSetNotFound, "id=%s", id)
	}
	ss.currentID = id
	return nil
}

// Current returns a snapshot of the active set, or nil when none is active.
func (ss *Sets) Current() *Set {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	set, ok := ss.sets[ss.currentID]
	if !ok {
		return nil
	}
	return snapshot(set)
}

// Get returns a snapshot of a set by ID.
func (ss *Sets) Get(id string) (*Set, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	set, ok := ss.sets[id]
	if !ok {
		return nil, errors.Wrapf(ErrSetNotFound, "id=%s", id)
	}
	return snapshot(set), nil
}

// All returns snapshots of every set in creation order.
func (ss *Sets) All() []*Set {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	result := make([]*Set, 0, len(ss.order))
	for _, id := range ss.order {
		result = append(result, snapshot(ss.sets[id]))
	}
	return result
}

// AddCriterion appends a validated criterion to a set.
func (ss *Sets) AddCriterion(setID string, c Criterion) error {
	if err := Validate(c); err != nil {
		return err
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	set, ok := ss.sets[setID]
	if !ok {
		return errors.Wrapf(ErrSetNotFound, "id=%s", setID)
	}
	set.Criteria = append(set.Criteria, c)
	return nil
}

// RemoveCriterion deletes the criterion at the given index.
func (ss *Sets) RemoveCriterion(setID string, index int) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	set, ok := ss.sets[setID]
	if !ok {
		return errors.Wrapf(ErrSetNotFound, "id=%s", setID)
	}
	if index < 0 || index >= len(set.Criteria) {
		return errors.Wrapf(ErrCriterionNotFound, "set=%s index=%d", setID, index)
	}
	set.Criteria = append(set.Criteria[:index], set.Criteria[index+1:]...)
	return nil
}

func snapshot(set *Set) *Set {
	cp := &Set{ID: set.ID, Name: set.Name}
	cp.Criteria = append(cp.Criteria, set.Criteria...)
	return cp
}
