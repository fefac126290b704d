package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ayase-lab/karabox/internal/domain/playlist"
)

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  string `json:"name"`
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name must not be empty")
		return
	}

	operator := body.Token != "" && body.Token == s.cfg.Operator.Token
	if s.cfg.IsOperatorDisplayName(body.Name) {
		operator = true
	}

	userID := s.coord.Users().Join(body.Name, operator)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"operator": s.coord.Users().IsOperator(userID),
	})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	s.coord.Users().Leave(r.Header.Get(userIDHeader))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.coord.Playlists()
	if err != nil {
		writeFaultError(w, err)
		return
	}

	operator := s.coord.Users().IsOperator(r.Header.Get(userIDHeader))
	views := []playlistView{}
	for _, p := range playlists {
		if !p.Visible && !operator {
			continue
		}
		views = append(views, toPlaylistView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	p, err := s.coord.Playlist(chi.URLParam(r, "id"))
	if err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlaylistView(p))
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name            string `json:"name"`
		Visible         *bool  `json:"visible"`
		AllowDuplicates bool   `json:"allow_duplicates"`
		AutoSortLikes   bool   `json:"auto_sort_likes"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	visible := true
	if body.Visible != nil {
		visible = *body.Visible
	}
	p, err := s.coord.CreatePlaylist(playlist.Playlist{
		Name:            strings.TrimSpace(body.Name),
		Owner:           r.Header.Get(userIDHeader),
		Visible:         visible,
		AllowDuplicates: body.AllowDuplicates,
		AutoSortLikes:   body.AutoSortLikes,
	})
	if err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlaylistView(p))
}

func (s *Server) handleEditPlaylist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name            string `json:"name"`
		Visible         bool   `json:"visible"`
		AllowDuplicates bool   `json:"allow_duplicates"`
		AutoSortLikes   bool   `json:"auto_sort_likes"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	err := s.coord.EditPlaylist(playlist.Playlist{
		ID:              chi.URLParam(r, "id"),
		Name:            strings.TrimSpace(body.Name),
		Visible:         body.Visible,
		AllowDuplicates: body.AllowDuplicates,
		AutoSortLikes:   body.AutoSortLikes,
	})
	if err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.DeletePlaylist(chi.URLParam(r, "id")); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSetCurrent(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.SetCurrentPlaylist(chi.URLParam(r, "id")); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSetPublic(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.SetPublicPlaylist(chi.URLParam(r, "id")); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.coord.Entries(chi.URLParam(r, "id"))
	if err != nil {
		writeFaultError(w, err)
		return
	}

	if !s.coord.Users().IsOperator(r.Header.Get(userIDHeader)) {
		visible := entries[:0]
		for _, e := range entries {
			if e.Visible {
				visible = append(visible, e)
			}
		}
		entries = visible
	}
	writeJSON(w, http.StatusOK, toEntryViews(entries))
}

func (s *Server) handleAddSong(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SongID   string `json:"song_id"`
		Position int    `json:"position"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	e, err := s.coord.AddSong(chi.URLParam(r, "id"), body.SongID, r.Header.Get(userIDHeader), body.Position)
	if err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryView(e))
}

func (s *Server) handleMoveEntry(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Position int `json:"position"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if err := s.coord.MoveEntry(chi.URLParam(r, "id"), body.Position); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRemoveEntries(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeEntryIDs(w, r)
	if !ok {
		return
	}
	if err := s.coord.RemoveEntries(ids...); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAcceptEntries(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeEntryIDs(w, r)
	if !ok {
		return
	}
	if err := s.coord.AcceptEntries(ids...); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRefuseEntries(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeEntryIDs(w, r)
	if !ok {
		return
	}
	if err := s.coord.RefuseEntries(ids...); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleShuffle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Policy string `json:"policy"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if err := s.coord.Shuffle(chi.URLParam(r, "id"), body.Policy); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func decodeEntryIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var body struct {
		EntryIDs []string `json:"entry_ids"`
	}
	if !decodeBody(w, r, &body) {
		return nil, false
	}
	if len(body.EntryIDs) == 0 {
		writeError(w, http.StatusBadRequest, "entry_ids must not be empty")
		return nil, false
	}
	return body.EntryIDs, true
}
