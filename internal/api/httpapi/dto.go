package httpapi

import (
	"time"

	"github.com/ayase-lab/karabox/internal/domain/playlist"
	"github.com/ayase-lab/karabox/internal/domain/song"
	"github.com/ayase-lab/karabox/internal/engine/criteria"
	"github.com/ayase-lab/karabox/internal/engine/poll"
	"github.com/ayase-lab/karabox/internal/engine/quota"
)

type playlistView struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Owner           string    `json:"owner,omitempty"`
	Current         bool      `json:"current"`
	Public          bool      `json:"public"`
	Visible         bool      `json:"visible"`
	AllowDuplicates bool      `json:"allow_duplicates"`
	AutoSortLikes   bool      `json:"auto_sort_likes"`
	DurationSec     int       `json:"duration_sec"`
	EntryCount      int       `json:"entry_count"`
	CreatedAt       time.Time `json:"created_at"`
	ModifiedAt      time.Time `json:"modified_at"`
}

func toPlaylistView(p playlist.Playlist) playlistView {
	return playlistView{
		ID:              p.ID,
		Name:            p.Name,
		Owner:           p.Owner,
		Current:         p.Current,
		Public:          p.Public,
		Visible:         p.Visible,
		AllowDuplicates: p.AllowDuplicates,
		AutoSortLikes:   p.AutoSortLikes,
		DurationSec:     int(p.Duration / time.Second),
		EntryCount:      p.EntryCount,
		CreatedAt:       p.CreatedAt,
		ModifiedAt:      p.ModifiedAt,
	}
}

type entryView struct {
	ID          string    `json:"id"`
	PlaylistID  string    `json:"playlist_id"`
	SongID      string    `json:"song_id"`
	Position    int       `json:"position"`
	AddedBy     string    `json:"added_by"`
	AddedAt     time.Time `json:"added_at"`
	DurationSec int       `json:"duration_sec"`
	Playing     bool      `json:"playing"`
	Free        bool      `json:"free"`
	Visible     bool      `json:"visible"`
	Accepted    bool      `json:"accepted"`
	Refused     bool      `json:"refused"`
	UpvoteCount int       `json:"upvote_count"`
}

func toEntryView(e playlist.Entry) entryView {
	return entryView{
		ID:          e.ID,
		PlaylistID:  e.PlaylistID,
		SongID:      e.SongID,
		Position:    e.Position,
		AddedBy:     e.AddedBy,
		AddedAt:     e.AddedAt,
		DurationSec: int(e.Duration / time.Second),
		Playing:     e.Playing,
		Free:        e.Free,
		Visible:     e.Visible,
		Accepted:    e.Accepted,
		Refused:     e.Refused,
		UpvoteCount: e.UpvoteCount,
	}
}

func toEntryViews(entries []playlist.Entry) []entryView {
	result := make([]entryView, len(entries))
	for i, e := range entries {
		result[i] = toEntryView(e)
	}
	return result
}

type songView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Type        string    `json:"type,omitempty"`
	DurationSec int       `json:"duration_sec"`
	Year        int       `json:"year,omitempty"`
	Tags        []tagView `json:"tags,omitempty"`
}

type tagView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func toSongView(s song.Song) songView {
	v := songView{
		ID:          s.ID,
		Title:       s.Title,
		Type:        s.Type,
		DurationSec: int(s.Duration / time.Second),
		Year:        s.Year,
	}
	for _, t := range s.Tags {
		v.Tags = append(v.Tags, tagView{ID: t.ID, Name: t.Name, Type: string(t.Type)})
	}
	return v
}

func toSongViews(songs []song.Song) []songView {
	result := make([]songView, len(songs))
	for i, s := range songs {
		result[i] = toSongView(s)
	}
	return result
}

type quotaView struct {
	Kind      string `json:"kind"`
	Songs     int    `json:"songs"`
	TimeSec   int    `json:"time_sec"`
	Limit     int    `json:"limit"`
	Exhausted bool   `json:"exhausted"`
}

func toQuotaView(u quota.Usage) quotaView {
	return quotaView{
		Kind:      string(u.Kind),
		Songs:     u.Songs,
		TimeSec:   int(u.Time / time.Second),
		Limit:     u.Limit,
		Exhausted: u.Exhausted(),
	}
}

type pollOptionView struct {
	EntryID string `json:"entry_id"`
	SongID  string `json:"song_id"`
	Title   string `json:"title"`
	Votes   int    `json:"votes"`
}

type pollView struct {
	State    string           `json:"state"`
	Options  []pollOptionView `json:"options,omitempty"`
	Deadline *time.Time       `json:"deadline,omitempty"`
}

func toPollView(state poll.State, options []poll.Option, deadline time.Time) pollView {
	v := pollView{State: state.String()}
	for _, o := range options {
		v.Options = append(v.Options, pollOptionView{
			EntryID: o.EntryID,
			SongID:  o.SongID,
			Title:   o.Title,
			Votes:   o.Votes,
		})
	}
	if state == poll.StateOpen {
		v.Deadline = &deadline
	}
	return v
}

type criterionPayload struct {
	Type    string `json:"type"`
	Value   string `json:"value"`
	TagType string `json:"tag_type,omitempty"`
}

func (p criterionPayload) toCriterion() criteria.Criterion {
	return criteria.Criterion{
		Type:    criteria.Type(p.Type),
		Value:   p.Value,
		TagType: song.TagType(p.TagType),
	}
}

func toCriteria(payloads []criterionPayload) []criteria.Criterion {
	result := make([]criteria.Criterion, len(payloads))
	for i, p := range payloads {
		result[i] = p.toCriterion()
	}
	return result
}

type criteriaSetView struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Active   bool               `json:"active"`
	Criteria []criterionPayload `json:"criteria"`
}

func toCriteriaSetView(set *criteria.Set, active bool) criteriaSetView {
	v := criteriaSetView{ID: set.ID, Name: set.Name, Active: active}
	for _, c := range set.Criteria {
		v.Criteria = append(v.Criteria, criterionPayload{
			Type:    string(c.Type),
			Value:   c.Value,
			TagType: string(c.TagType),
		})
	}
	return v
}
