package criteria

import (
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ayase-lab/karabox/internal/domain/song"
)

// Matcher decides whether a song matches one criterion of its type.
type Matcher interface {
	Type() Type
	// Validate rejects a malformed criterion before it enters a set.
	Validate(c Criterion) error
	// Matches reports whether the song is hit by the criterion.
	Matches(s song.Song, c Criterion) bool
}

var registry = map[Type]Matcher{}

func register(m Matcher) {
	registry[m.Type()] = m
}

func matcherFor(t Type) (Matcher, bool) {
	m, ok := registry[t]
	return m, ok
}

// Validate checks a criterion against its type's matcher.
func Validate(c Criterion) error {
	m, ok := matcherFor(c.Type)
	if !ok {
		return errors.Wrapf(ErrUnknownType, "type=%s", c.Type)
	}
	return m.Validate(c)
}

// Types returns all registered criterion types.
func Types() []Type {
	result := make([]Type, 0, len(registry))
	for t := range registry {
		result = append(result, t)
	}
	return result
}

// tagMatcher matches by tag identity and the tag's declared type.
type tagMatcher struct{}

func (tagMatcher) Type() Type { return TypeTag }

func (tagMatcher) Validate(c Criterion) error {
	if c.Value == "" {
		return errors.New("tag criterion requires a tag id")
	}
	if c.TagType == "" {
		return errors.New("tag criterion requires a tag type")
	}
	return nil
}

func (tagMatcher) Matches(s song.Song, c Criterion) bool {
	return s.HasTag(c.Value, c.TagType)
}

// yearMatcher matches by exact release year.
type yearMatcher struct{}

func (yearMatcher) Type() Type { return TypeYear }

func (yearMatcher) Validate(c Criterion) error {
	if _, err := strconv.Atoi(c.Value); err != nil {
		return errors.Wrap(err, "year criterion requires an integer value")
	}
	return nil
}

func (yearMatcher) Matches(s song.Song, c Criterion) bool {
	year, err := strconv.Atoi(c.Value)
	if err != nil {
		return false
	}
	return s.Year == year
}

// songMatcher matches by exact song identity.
type songMatcher struct{}

func (songMatcher) Type() Type { return TypeSong }

func (songMatcher) Validate(c Criterion) error {
	if c.Value == "" {
		return errors.New("song criterion requires a song id")
	}
	return nil
}

func (songMatcher) Matches(s song.Song, c Criterion) bool {
	return s.ID == c.Value
}

// durationMatcher compares song duration against a threshold in seconds.
type durationMatcher struct {
	kind   Type
	longer bool
}

func (m durationMatcher) Type() Type { return m.kind }

func (m durationMatcher) Validate(c Criterion) error {
	secs, err := strconv.Atoi(c.Value)
	if err != nil {
		return errors.Wrap(err, "duration criterion requires an integer value in seconds")
	}
	if secs <= 0 {
		return errors.Newf("duration threshold must be positive: got %d", secs)
	}
	return nil
}

func (m durationMatcher) Matches(s song.Song, c Criterion) bool {
	secs, err := strconv.Atoi(c.Value)
	if err != nil {
		return false
	}
	threshold := time.Duration(secs) * time.Second
	if m.longer {
		return s.Duration > threshold
	}
	return s.Duration < threshold
}

func init() {
	register(tagMatcher{})
	register(yearMatcher{})
	register(songMatcher{})
	register(durationMatcher{kind: TypeLongerThan, longer: true})
	register(durationMatcher{kind: TypeShorterThan, longer: false})
}
