package criteria

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayase-lab/karabox/internal/domain/song"
)

func testLibrary() *song.MemoryLibrary {
	lib := song.NewMemoryLibrary()
	lib.Put(song.Song{
		ID:    "song-1990",
		Title: "Old Opening",
		Year:  1990,
		Tags: []song.Tag{
			{ID: "tag-idol", Name: "Idols", Type: song.TagTypeMisc},
		},
		Duration: 90 * time.Second,
	})
	lib.Put(song.Song{
		ID:       "song-1991",
		Title:    "New Opening",
		Year:     1991,
		Duration: 5 * time.Minute,
	})
	lib.Put(song.Song{
		ID:    "song-cover",
		Title: "Cover Version",
		Year:  2001,
		Tags: []song.Tag{
			{ID: "tag-idol", Name: "Idols", Type: song.TagTypeSinger},
		},
		Duration: 3 * time.Minute,
	})
	return lib
}

func TestExcluded(t *testing.T) {
	tests := []struct {
		name      string
		criterion Criterion
		songID    string
		want      bool
	}{
		{
			name:      "year match excludes",
			criterion: Criterion{Type: TypeYear, Value: "1990"},
			songID:    "song-1990",
			want:      true,
		},
		{
			name:      "year mismatch passes",
			criterion: Criterion{Type: TypeYear, Value: "1990"},
			songID:    "song-1991",
			want:      false,
		},
		{
			name:      "tag matches identity and declared type",
			criterion: Criterion{Type: TypeTag, Value: "tag-idol", TagType: song.TagTypeMisc},
			songID:    "song-1990",
			want:      true,
		},
		{
			name:      "same tag id under another type does not match",
			criterion: Criterion{Type: TypeTag, Value: "tag-idol", TagType: song.TagTypeMisc},
			songID:    "song-cover",
			want:      false,
		},
		{
			name:      "exact song match",
			criterion: Criterion{Type: TypeSong, Value: "song-cover"},
			songID:    "song-cover",
			want:      true,
		},
		{
			name:      "longer than threshold",
			criterion: Criterion{Type: TypeLongerThan, Value: "240"},
			songID:    "song-1991",
			want:      true,
		},
		{
			name:      "shorter than threshold",
			criterion: Criterion{Type: TypeShorterThan, Value: "120"},
			songID:    "song-1990",
			want:      true,
		},
		{
			name:      "duration within bounds passes",
			criterion: Criterion{Type: TypeLongerThan, Value: "240"},
			songID:    "song-cover",
			want:      false,
		},
	}

	lib := testLibrary()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := lib.GetSong(tt.songID)
			require.NoError(t, err)

			set := &Set{Criteria: []Criterion{tt.criterion}}
			assert.Equal(t, tt.want, Excluded(s, set))
		})
	}
}

func TestExcluded_AnyCriterionSuffices(t *testing.T) {
	lib := testLibrary()
	set := &Set{Criteria: []Criterion{
		{Type: TypeYear, Value: "1891"}, // matches nothing
		{Type: TypeSong, Value: "song-1991"},
	}}

	s, err := lib.GetSong("song-1991")
	require.NoError(t, err)
	assert.True(t, Excluded(s, set), "a single matching criterion excludes")

	s, err = lib.GetSong("song-1990")
	require.NoError(t, err)
	assert.False(t, Excluded(s, set))
}

func TestWhitelistIsLibraryMinusBlacklist(t *testing.T) {
	lib := testLibrary()
	set := &Set{Criteria: []Criterion{{Type: TypeYear, Value: "1990"}}}

	black := Blacklist(lib, set)
	white := Whitelist(lib, set)

	require.Len(t, black, 1)
	assert.Equal(t, "song-1990", black[0].ID)
	assert.Len(t, white, len(lib.AllSongs())-len(black))
	for _, s := range white {
		assert.NotEqual(t, "song-1990", s.ID)
	}

	// Re-evaluating with an unchanged set is idempotent.
	assert.Equal(t, black, Blacklist(lib, set))
	assert.Equal(t, white, Whitelist(lib, set))
}

func TestExcluded_NilSetExcludesNothing(t *testing.T) {
	lib := testLibrary()
	for _, s := range lib.AllSongs() {
		assert.False(t, Excluded(s, nil))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		criterion Criterion
		wantErr   bool
	}{
		{name: "valid year", criterion: Criterion{Type: TypeYear, Value: "1999"}},
		{name: "year not a number", criterion: Criterion{Type: TypeYear, Value: "nineteen"}, wantErr: true},
		{name: "tag without type", criterion: Criterion{Type: TypeTag, Value: "tag-1"}, wantErr: true},
		{name: "valid tag", criterion: Criterion{Type: TypeTag, Value: "tag-1", TagType: song.TagTypeSinger}},
		{name: "song without id", criterion: Criterion{Type: TypeSong}, wantErr: true},
		{name: "duration zero threshold", criterion: Criterion{Type: TypeLongerThan, Value: "0"}, wantErr: true},
		{name: "unknown type", criterion: Criterion{Type: "mood", Value: "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.criterion)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSets_CurrentAndEditing(t *testing.T) {
	ss := NewSets()
	assert.Nil(t, ss.Current(), "no current set before one is chosen")

	a := ss.Add("strict", []Criterion{{Type: TypeYear, Value: "1990"}})
	b := ss.Add("lenient", nil)

	require.NoError(t, ss.SetCurrent(a.ID))
	cur := ss.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "strict", cur.Name)

	// Switching takes effect on the next evaluation pass.
	require.NoError(t, ss.SetCurrent(b.ID))
	assert.Equal(t, "lenient", ss.Current().Name)

	// Editing a snapshot does not leak into the stored set.
	cur = ss.Current()
	cur.Criteria = append(cur.Criteria, Criterion{Type: TypeSong, Value: "song-x"})
	assert.Empty(t, ss.Current().Criteria)

	require.NoError(t, ss.AddCriterion(b.ID, Criterion{Type: TypeSong, Value: "song-x"}))
	assert.Len(t, ss.Current().Criteria, 1)
	require.NoError(t, ss.RemoveCriterion(b.ID, 0))
	assert.Empty(t, ss.Current().Criteria)

	err := ss.Remove(b.ID)
	assert.Error(t, err, "current set cannot be removed")
	require.NoError(t, ss.Remove(a.ID))
	_, err = ss.Get(a.ID)
	assert.True(t, errors.Is(err, ErrSetNotFound))
}

func TestFromSettings(t *testing.T) {
	criteria, err := FromSettings([]map[string]any{
		{"type": "year", "value": "1990"},
		{"type": "tag", "value": "tag-1", "tag_type": "SINGER"},
	})
	require.NoError(t, err)
	require.Len(t, criteria, 2)
	assert.Equal(t, TypeYear, criteria[0].Type)
	assert.Equal(t, song.TagTypeSinger, criteria[1].TagType)

	_, err = FromSettings([]map[string]any{{"type": "year", "value": "bad"}})
	assert.Error(t, err)
}
