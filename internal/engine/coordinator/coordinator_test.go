package coordinator

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayase-lab/karabox/internal/app/notification"
	"github.com/ayase-lab/karabox/internal/domain/playlist"
	"github.com/ayase-lab/karabox/internal/domain/song"
	"github.com/ayase-lab/karabox/internal/domain/user"
	"github.com/ayase-lab/karabox/internal/engine/criteria"
	"github.com/ayase-lab/karabox/internal/engine/fault"
	"github.com/ayase-lab/karabox/internal/engine/poll"
	"github.com/ayase-lab/karabox/internal/engine/quota"
	"github.com/ayase-lab/karabox/internal/engine/store"
	"github.com/ayase-lab/karabox/internal/engine/vote"
)

type fixture struct {
	c     *Coordinator
	store *store.MemoryStore
	lib   *song.MemoryLibrary
	users *user.Registry
	bus   *notification.Bus

	mu  sync.Mutex
	cfg Config

	operator string
	alice    string
	bob      string
	carol    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: store.NewMemoryStore(),
		lib:   song.NewMemoryLibrary(),
		users: user.NewRegistry(),
		bus:   notification.NewBus(),
		cfg: Config{
			Quota:   quota.Config{Kind: quota.KindNone},
			Upvotes: vote.Config{Percent: 33, Min: 2},
			Poll:    poll.Config{Choices: 4, Timeout: time.Hour},
		},
	}
	for i := 1; i <= 6; i++ {
		f.lib.Put(song.Song{
			ID:       fmt.Sprintf("song-%d", i),
			Title:    fmt.Sprintf("Song %d", i),
			Duration: 4 * time.Minute,
			Year:     1990 + i,
		})
	}
	f.operator = f.users.Join("operator", true)
	f.alice = f.users.Join("alice", false)
	f.bob = f.users.Join("bob", false)
	f.carol = f.users.Join("carol", false)

	f.c = New(f.store, f.lib, f.users, f.bus, f.config, rand.New(rand.NewSource(7)))
	require.NoError(t, f.c.Init())
	return f
}

func (f *fixture) config() Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fixture) setConfig(mutate func(*Config)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(&f.cfg)
}

func (f *fixture) add(t *testing.T, songID, userID string) playlist.Entry {
	t.Helper()
	e, err := f.c.AddSong(f.c.PublicPlaylistID(), songID, userID, 0)
	require.NoError(t, err)
	return e
}

func (f *fixture) entryIDs(t *testing.T, playlistID string) []string {
	t.Helper()
	entries, err := f.c.Entries(playlistID)
	require.NoError(t, err)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func TestCoordinator_InitCreatesDefaultPlaylist(t *testing.T) {
	f := newFixture(t)

	require.NotEmpty(t, f.c.CurrentPlaylistID())
	assert.Equal(t, f.c.CurrentPlaylistID(), f.c.PublicPlaylistID())

	p, err := f.c.Playlist(f.c.CurrentPlaylistID())
	require.NoError(t, err)
	assert.True(t, p.Current)
	assert.True(t, p.Public)
	assert.True(t, p.Visible)
}

func TestCoordinator_InitRestoresRoles(t *testing.T) {
	f := newFixture(t)
	p, err := f.c.CreatePlaylist(playlist.Playlist{Name: "Evening", Owner: f.operator})
	require.NoError(t, err)
	require.NoError(t, f.c.SetCurrentPlaylist(p.ID))

	// A fresh coordinator over the same store picks the roles back up.
	c2 := New(f.store, f.lib, f.users, f.bus, f.config, rand.New(rand.NewSource(8)))
	require.NoError(t, c2.Init())
	assert.Equal(t, p.ID, c2.CurrentPlaylistID())
	assert.NotEqual(t, p.ID, c2.PublicPlaylistID())
}

func TestCoordinator_AddSongAppends(t *testing.T) {
	f := newFixture(t)

	e1 := f.add(t, "song-1", f.alice)
	e2 := f.add(t, "song-2", f.alice)
	assert.Equal(t, 1, e1.Position)
	assert.Equal(t, 2, e2.Position)
	assert.Equal(t, 4*time.Minute, e1.Duration)
}

func TestCoordinator_AddSongValidation(t *testing.T) {
	f := newFixture(t)
	public := f.c.PublicPlaylistID()

	tests := []struct {
		name       string
		playlistID string
		songID     string
		userID     string
		check      func(error) bool
	}{
		{"empty song", public, "", f.alice, fault.IsValidation},
		{"unknown playlist", "nope", "song-1", f.alice, fault.IsNotFound},
		{"unknown song", public, "nope", f.alice, fault.IsNotFound},
		{"unknown user", public, "song-1", "nope", fault.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.c.AddSong(tt.playlistID, tt.songID, tt.userID, 0)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestCoordinator_AddSongModeration(t *testing.T) {
	f := newFixture(t)

	byParticipant := f.add(t, "song-1", f.alice)
	assert.False(t, byParticipant.Accepted, "participant requests on the public playlist await moderation")

	byOperator := f.add(t, "song-2", f.operator)
	assert.True(t, byOperator.Accepted)

	private, err := f.c.CreatePlaylist(playlist.Playlist{Name: "Prep", Owner: f.operator, Visible: true})
	require.NoError(t, err)
	e, err := f.c.AddSong(private.ID, "song-3", f.alice, 0)
	require.NoError(t, err)
	assert.True(t, e.Accepted, "non-public playlists have no moderation queue")
}

func TestCoordinator_AddSongCriteriaExcluded(t *testing.T) {
	f := newFixture(t)

	set, err := f.c.CreateCriteriaSet("no 1991", []criteria.Criterion{
		{Type: criteria.TypeYear, Value: "1991"},
	})
	require.NoError(t, err)
	require.NoError(t, f.c.ActivateCriteriaSet(set.ID))

	_, err = f.c.AddSong(f.c.PublicPlaylistID(), "song-1", f.alice, 0)
	assert.True(t, fault.IsPolicy(err), "song-1 is from 1991")

	// Operators bypass the criteria.
	_, err = f.c.AddSong(f.c.PublicPlaylistID(), "song-1", f.operator, 0)
	assert.NoError(t, err)

	assert.Len(t, f.c.Blacklist(), 1)
	assert.Len(t, f.c.Whitelist(), 5)
}

func TestCoordinator_AddSongQuota(t *testing.T) {
	f := newFixture(t)
	f.setConfig(func(c *Config) {
		c.Quota = quota.Config{Kind: quota.KindSongs, Limit: 1}
		c.Upvotes = vote.Config{Percent: 1, Min: 1}
	})

	e := f.add(t, "song-1", f.alice)

	_, err := f.c.AddSong(f.c.PublicPlaylistID(), "song-2", f.alice, 0)
	assert.True(t, fault.IsQuotaExceeded(err))

	// Operators are exempt.
	_, err = f.c.AddSong(f.c.PublicPlaylistID(), "song-3", f.operator, 0)
	assert.NoError(t, err)

	// A freed entry stops counting, so alice can request again.
	result, err := f.c.Upvote(e.ID, f.bob)
	require.NoError(t, err)
	require.True(t, result.Freed)

	_, err = f.c.AddSong(f.c.PublicPlaylistID(), "song-2", f.alice, 0)
	assert.NoError(t, err)
}

func TestCoordinator_AddSongDejavu(t *testing.T) {
	f := newFixture(t)
	f.setConfig(func(c *Config) { c.DejavuWindow = time.Hour })

	justPlayed := time.Now().Add(-10 * time.Minute)
	f.lib.Put(song.Song{ID: "song-7", Title: "Song 7", Duration: 3 * time.Minute, LastPlayedAt: &justPlayed})

	_, err := f.c.AddSong(f.c.PublicPlaylistID(), "song-7", f.alice, 0)
	assert.True(t, fault.IsConflict(err))

	f.setConfig(func(c *Config) { c.DejavuWindow = 0 })
	_, err = f.c.AddSong(f.c.PublicPlaylistID(), "song-7", f.alice, 0)
	assert.NoError(t, err)
}

func TestCoordinator_AddSongDuplicate(t *testing.T) {
	f := newFixture(t)
	f.add(t, "song-1", f.alice)

	_, err := f.c.AddSong(f.c.PublicPlaylistID(), "song-1", f.bob, 0)
	assert.True(t, fault.IsConflict(err), "same song twice in one playlist")

	p, err := f.c.Playlist(f.c.PublicPlaylistID())
	require.NoError(t, err)
	p.AllowDuplicates = true
	require.NoError(t, f.c.EditPlaylist(p))

	_, err = f.c.AddSong(f.c.PublicPlaylistID(), "song-1", f.bob, 0)
	assert.NoError(t, err)
}

func TestCoordinator_RoleSwap(t *testing.T) {
	f := newFixture(t)
	standard := f.c.CurrentPlaylistID()

	evening, err := f.c.CreatePlaylist(playlist.Playlist{Name: "Evening", Owner: f.operator})
	require.NoError(t, err)
	require.NoError(t, f.c.SetCurrentPlaylist(evening.ID))

	assert.Equal(t, evening.ID, f.c.CurrentPlaylistID())
	old, err := f.c.Playlist(standard)
	require.NoError(t, err)
	assert.False(t, old.Current, "the role moved off the old holder")
	assert.True(t, old.Public)

	// Role holders cannot be deleted.
	err = f.c.DeletePlaylist(evening.ID)
	assert.True(t, fault.IsPolicy(err))
	err = f.c.DeletePlaylist(standard)
	assert.True(t, fault.IsPolicy(err))

	require.NoError(t, f.c.SetPublicPlaylist(evening.ID))
	require.NoError(t, f.c.DeletePlaylist(standard))
}

func TestCoordinator_RemoveEntriesDropsVotes(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, "song-1", f.alice)

	_, err := f.c.Upvote(e.ID, f.bob)
	require.NoError(t, err)
	assert.True(t, f.c.HasVoted(e.ID, f.bob))

	require.NoError(t, f.c.RemoveEntries(e.ID))
	assert.False(t, f.c.HasVoted(e.ID, f.bob))

	err = f.c.RemoveEntries("nope")
	assert.True(t, fault.IsNotFound(err))
}

func TestCoordinator_RefusedEntryLeavesQuota(t *testing.T) {
	f := newFixture(t)
	f.setConfig(func(c *Config) {
		c.Quota = quota.Config{Kind: quota.KindSongs, Limit: 1}
	})

	e := f.add(t, "song-1", f.alice)
	_, err := f.c.AddSong(f.c.PublicPlaylistID(), "song-2", f.alice, 0)
	require.True(t, fault.IsQuotaExceeded(err))

	require.NoError(t, f.c.RefuseEntries(e.ID))
	usage, err := f.c.UserQuota(f.alice, f.c.PublicPlaylistID())
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Songs)

	_, err = f.c.AddSong(f.c.PublicPlaylistID(), "song-2", f.alice, 0)
	assert.NoError(t, err)
}

func TestCoordinator_Shuffle(t *testing.T) {
	f := newFixture(t)
	public := f.c.PublicPlaylistID()
	for i := 1; i <= 5; i++ {
		f.add(t, fmt.Sprintf("song-%d", i), f.alice)
	}
	before := f.entryIDs(t, public)

	require.NoError(t, f.c.Shuffle(public, "normal"))
	after := f.entryIDs(t, public)
	assert.ElementsMatch(t, before, after, "shuffling never changes membership")

	err := f.c.Shuffle(public, "chaotic")
	assert.True(t, fault.IsValidation(err))
}

func TestCoordinator_ShuffleBalanceOrdersByVotes(t *testing.T) {
	f := newFixture(t)
	public := f.c.PublicPlaylistID()
	e1 := f.add(t, "song-1", f.alice)
	e2 := f.add(t, "song-2", f.alice)
	e3 := f.add(t, "song-3", f.alice)

	_, err := f.c.Upvote(e2.ID, f.bob)
	require.NoError(t, err)
	_, err = f.c.Upvote(e2.ID, f.carol)
	require.NoError(t, err)
	_, err = f.c.Upvote(e3.ID, f.bob)
	require.NoError(t, err)

	require.NoError(t, f.c.Shuffle(public, "balance"))
	assert.Equal(t, []string{e2.ID, e3.ID, e1.ID}, f.entryIDs(t, public))
}

func TestCoordinator_UpvoteAutoSort(t *testing.T) {
	f := newFixture(t)
	public := f.c.PublicPlaylistID()

	p, err := f.c.Playlist(public)
	require.NoError(t, err)
	p.AutoSortLikes = true
	require.NoError(t, f.c.EditPlaylist(p))

	e1 := f.add(t, "song-1", f.alice)
	e2 := f.add(t, "song-2", f.alice)

	_, err = f.c.Upvote(e2.ID, f.bob)
	require.NoError(t, err)
	_, err = f.c.Upvote(e2.ID, f.carol)
	require.NoError(t, err)
	_, err = f.c.Upvote(e1.ID, f.bob)
	require.NoError(t, err)

	assert.Equal(t, []string{e2.ID, e1.ID}, f.entryIDs(t, public))

	// Withdrawing both votes sorts e1 back to the front.
	_, err = f.c.Downvote(e2.ID, f.bob)
	require.NoError(t, err)
	_, err = f.c.Downvote(e2.ID, f.carol)
	require.NoError(t, err)
	assert.Equal(t, []string{e1.ID, e2.ID}, f.entryIDs(t, public))
}

func TestCoordinator_PollFlow(t *testing.T) {
	f := newFixture(t)
	public := f.c.PublicPlaylistID()

	events := &recordingStream{}
	f.bus.Subscribe(events)

	playing := f.add(t, "song-1", f.alice)
	e2 := f.add(t, "song-2", f.alice)
	e3 := f.add(t, "song-3", f.bob)

	require.NoError(t, f.c.SongStarted(playing.ID))

	state, options, _ := f.c.PollSnapshot()
	require.Equal(t, poll.StateOpen, state)
	assert.Len(t, options, 2, "the playing entry is not a candidate")

	require.NoError(t, f.c.PollVote(e3.ID, f.alice))
	require.NoError(t, f.c.PollVote(e3.ID, f.carol))
	require.NoError(t, f.c.PollVote(e2.ID, f.bob))

	f.c.SongAboutToEnd()

	state, _, _ = f.c.PollSnapshot()
	assert.Equal(t, poll.StateIdle, state)

	// The winner moved directly behind the playing entry.
	ids := f.entryIDs(t, public)
	require.Len(t, ids, 3)
	assert.Equal(t, playing.ID, ids[0])
	assert.Equal(t, e3.ID, ids[1])

	kinds := events.kinds()
	assert.Contains(t, kinds, notification.PollStarted)
	assert.Contains(t, kinds, notification.PollEnded)
}

func TestCoordinator_PollWinnerCopiedAcrossPlaylists(t *testing.T) {
	f := newFixture(t)
	public := f.c.PublicPlaylistID()

	current, err := f.c.CreatePlaylist(playlist.Playlist{Name: "Show", Owner: f.operator})
	require.NoError(t, err)
	require.NoError(t, f.c.SetCurrentPlaylist(current.ID))

	playing, err := f.c.AddSong(current.ID, "song-1", f.operator, 0)
	require.NoError(t, err)
	wanted := f.add(t, "song-2", f.alice)

	require.NoError(t, f.c.SongStarted(playing.ID))
	require.NoError(t, f.c.PollVote(wanted.ID, f.bob))
	f.c.SongAboutToEnd()

	entries, err := f.c.Entries(current.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	copied := entries[1]
	assert.Equal(t, "song-2", copied.SongID)
	assert.NotEqual(t, wanted.ID, copied.ID, "a cross-playlist winner is copied, not moved")
	assert.True(t, copied.Free, "promoted entries never count against quota")

	// The original stays on the public playlist.
	assert.Contains(t, f.entryIDs(t, public), wanted.ID)
}

func TestCoordinator_PlaybackStoppedAbortsPoll(t *testing.T) {
	f := newFixture(t)
	playing := f.add(t, "song-1", f.alice)
	f.add(t, "song-2", f.bob)

	require.NoError(t, f.c.SongStarted(playing.ID))
	state, _, _ := f.c.PollSnapshot()
	require.Equal(t, poll.StateOpen, state)

	f.c.PlaybackStopped()
	state, _, _ = f.c.PollSnapshot()
	assert.Equal(t, poll.StateIdle, state)
}

func TestCoordinator_StartPollWithoutCandidates(t *testing.T) {
	f := newFixture(t)
	err := f.c.StartPoll()
	assert.True(t, fault.IsPolicy(err))
}

func TestCoordinator_CriteriaSetLifecycle(t *testing.T) {
	f := newFixture(t)

	set, err := f.c.CreateCriteriaSet("strict", nil)
	require.NoError(t, err)
	require.NoError(t, f.c.AddCriterion(set.ID, criteria.Criterion{Type: criteria.TypeSong, Value: "song-1"}))

	err = f.c.AddCriterion(set.ID, criteria.Criterion{Type: "bogus"})
	assert.True(t, fault.IsValidation(err))

	require.NoError(t, f.c.ActivateCriteriaSet(set.ID))
	err = f.c.DeleteCriteriaSet(set.ID)
	assert.True(t, fault.IsPolicy(err), "the active set cannot be removed")

	other, err := f.c.CreateCriteriaSet("loose", nil)
	require.NoError(t, err)
	require.NoError(t, f.c.ActivateCriteriaSet(other.ID))
	require.NoError(t, f.c.DeleteCriteriaSet(set.ID))

	err = f.c.ActivateCriteriaSet("nope")
	assert.True(t, fault.IsNotFound(err))
}

type recordingStream struct {
	mu     sync.Mutex
	events []notification.Event
}

func (s *recordingStream) Send(e notification.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingStream) kinds() []notification.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]notification.Kind, len(s.events))
	for i, e := range s.events {
		result[i] = e.Kind
	}
	return result
}
