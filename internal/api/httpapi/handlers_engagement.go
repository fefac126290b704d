package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleUpvote(w http.ResponseWriter, r *http.Request) {
	result, err := s.coord.Upvote(chi.URLParam(r, "id"), r.Header.Get(userIDHeader))
	if err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": result.Count,
		"freed": result.Freed,
	})
}

func (s *Server) handleDownvote(w http.ResponseWriter, r *http.Request) {
	result, err := s.coord.Downvote(chi.URLParam(r, "id"), r.Header.Get(userIDHeader))
	if err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": result.Count})
}

func (s *Server) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	playlistID := r.URL.Query().Get("playlist_id")
	if playlistID == "" {
		playlistID = s.coord.PublicPlaylistID()
	}

	usage, err := s.coord.UserQuota(r.Header.Get(userIDHeader), playlistID)
	if err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuotaView(usage))
}

func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	state, options, deadline := s.coord.PollSnapshot()
	writeJSON(w, http.StatusOK, toPollView(state, options, deadline))
}

func (s *Server) handleStartPoll(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.StartPoll(); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handlePollVote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EntryID string `json:"entry_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if err := s.coord.PollVote(body.EntryID, r.Header.Get(userIDHeader)); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSongStarted(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EntryID string `json:"entry_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if err := s.coord.SongStarted(body.EntryID); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSongAboutToEnd(w http.ResponseWriter, r *http.Request) {
	s.coord.SongAboutToEnd()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handlePlaybackStopped(w http.ResponseWriter, r *http.Request) {
	s.coord.PlaybackStopped()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListCriteriaSets(w http.ResponseWriter, r *http.Request) {
	current := s.coord.CurrentCriteriaSet()
	currentID := ""
	if current != nil {
		currentID = current.ID
	}

	views := []criteriaSetView{}
	for _, set := range s.coord.CriteriaSets() {
		views = append(views, toCriteriaSetView(set, set.ID == currentID))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateCriteriaSet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string             `json:"name"`
		Criteria []criterionPayload `json:"criteria"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	set, err := s.coord.CreateCriteriaSet(body.Name, toCriteria(body.Criteria))
	if err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCriteriaSetView(set, false))
}

func (s *Server) handleDeleteCriteriaSet(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.DeleteCriteriaSet(chi.URLParam(r, "id")); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleActivateCriteriaSet(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.ActivateCriteriaSet(chi.URLParam(r, "id")); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAddCriterion(w http.ResponseWriter, r *http.Request) {
	var body criterionPayload
	if !decodeBody(w, r, &body) {
		return
	}

	if err := s.coord.AddCriterion(chi.URLParam(r, "id"), body.toCriterion()); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRemoveCriterion(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	if err := s.coord.RemoveCriterion(chi.URLParam(r, "id"), index); err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleWhitelist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSongViews(s.coord.Whitelist()))
}

func (s *Server) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSongViews(s.coord.Blacklist()))
}
