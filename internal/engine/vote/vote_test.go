package vote

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayase-lab/karabox/internal/domain/playlist"
	"github.com/ayase-lab/karabox/internal/engine/fault"
	"github.com/ayase-lab/karabox/internal/engine/store"
)

type voteFixture struct {
	engine *Engine
	store  *store.MemoryStore
	online int
}

func newVoteFixture(t *testing.T, cfg Config, online int) *voteFixture {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.CreatePlaylist(playlist.Playlist{ID: "pl-pub", Name: "Public", Public: true}))
	require.NoError(t, st.CreatePlaylist(playlist.Playlist{ID: "pl-other", Name: "Side"}))

	f := &voteFixture{store: st, online: online}
	f.engine = NewEngine(st,
		func() string { return "pl-pub" },
		func() int { return f.online },
		func() Config { return cfg },
	)

	for _, e := range []playlist.Entry{
		{ID: "e-1", PlaylistID: "pl-pub", SongID: "song-1", AddedBy: "alice", Duration: time.Minute},
		{ID: "e-2", PlaylistID: "pl-pub", SongID: "song-2", AddedBy: "bob", Duration: time.Minute},
		{ID: "e-side", PlaylistID: "pl-other", SongID: "song-3", AddedBy: "alice", Duration: time.Minute},
	} {
		_, err := st.Insert(e, 0)
		require.NoError(t, err)
	}
	return f
}

func TestEngine_UpvoteValidation(t *testing.T) {
	tests := []struct {
		name    string
		entryID string
		voterID string
		wantErr func(error) bool
	}{
		{
			name:    "own entry",
			entryID: "e-1",
			voterID: "alice",
			wantErr: fault.IsPolicy,
		},
		{
			name:    "entry outside public playlist",
			entryID: "e-side",
			voterID: "bob",
			wantErr: fault.IsPolicy,
		},
		{
			name:    "unknown entry",
			entryID: "e-404",
			voterID: "bob",
			wantErr: fault.IsNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newVoteFixture(t, Config{Percent: 100, Min: 99}, 10)
			_, err := f.engine.Upvote(tt.entryID, tt.voterID)
			require.Error(t, err)
			assert.True(t, tt.wantErr(err))
		})
	}
}

func TestEngine_DoubleVoteRejected(t *testing.T) {
	f := newVoteFixture(t, Config{Percent: 100, Min: 99}, 10)

	res, err := f.engine.Upvote("e-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)

	_, err = f.engine.Upvote("e-1", "bob")
	require.Error(t, err)
	assert.True(t, fault.IsPolicy(err))

	entry, err := f.store.GetEntry("e-1")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.UpvoteCount)
}

func TestEngine_DownvoteRestoresCount(t *testing.T) {
	f := newVoteFixture(t, Config{Percent: 100, Min: 99}, 10)

	_, err := f.engine.Upvote("e-1", "bob")
	require.NoError(t, err)
	res, err := f.engine.Downvote("e-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)

	// A downvote without an active vote is rejected; counts never go negative.
	_, err = f.engine.Downvote("e-1", "bob")
	require.Error(t, err)
	assert.True(t, fault.IsPolicy(err))

	entry, err := f.store.GetEntry("e-1")
	require.NoError(t, err)
	assert.Equal(t, 0, entry.UpvoteCount)
}

func TestEngine_FreePromotion(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		online    int
		voters    []string
		wantFreed bool
	}{
		{
			name:      "threshold met",
			cfg:       Config{Percent: 50, Min: 2},
			online:    4,
			voters:    []string{"bob", "carol"},
			wantFreed: true,
		},
		{
			name:      "percent met but below minimum",
			cfg:       Config{Percent: 50, Min: 3},
			online:    4,
			voters:    []string{"bob", "carol"},
			wantFreed: false,
		},
		{
			name:      "minimum met but below percent",
			cfg:       Config{Percent: 80, Min: 2},
			online:    10,
			voters:    []string{"bob", "carol"},
			wantFreed: false,
		},
		{
			name:      "nobody online",
			cfg:       Config{Percent: 50, Min: 1},
			online:    0,
			voters:    []string{"bob"},
			wantFreed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newVoteFixture(t, tt.cfg, tt.online)

			var freed bool
			for _, v := range tt.voters {
				res, err := f.engine.Upvote("e-1", v)
				require.NoError(t, err)
				freed = freed || res.Freed
			}
			assert.Equal(t, tt.wantFreed, freed)

			entry, err := f.store.GetEntry("e-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantFreed, entry.Free)
		})
	}
}

func TestEngine_PromotionIsIdempotent(t *testing.T) {
	f := newVoteFixture(t, Config{Percent: 25, Min: 1}, 4)

	res, err := f.engine.Upvote("e-1", "bob")
	require.NoError(t, err)
	assert.True(t, res.Freed)

	// Further votes on an already-freed entry do not re-promote.
	res, err = f.engine.Upvote("e-1", "carol")
	require.NoError(t, err)
	assert.False(t, res.Freed)
	assert.Equal(t, 2, res.Count)
}

func TestEngine_ConcurrentVotesCountDistinctVoters(t *testing.T) {
	f := newVoteFixture(t, Config{Percent: 100, Min: 99}, 100)

	voters := []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8"}
	var wg sync.WaitGroup
	for _, v := range voters {
		wg.Add(1)
		go func(voter string) {
			defer wg.Done()
			_, err := f.engine.Upvote("e-1", voter)
			assert.NoError(t, err)
		}(v)
	}
	wg.Wait()

	entry, err := f.store.GetEntry("e-1")
	require.NoError(t, err)
	assert.Equal(t, len(voters), entry.UpvoteCount)
	assert.Equal(t, len(voters), f.engine.Votes("e-1"))
}

func TestEngine_Forget(t *testing.T) {
	f := newVoteFixture(t, Config{Percent: 100, Min: 99}, 10)

	_, err := f.engine.Upvote("e-1", "bob")
	require.NoError(t, err)
	f.engine.Forget("e-1")
	assert.Equal(t, 0, f.engine.Votes("e-1"))
	assert.False(t, f.engine.HasVoted("e-1", "bob"))
}
