// Package httpapi exposes the queue engine over a JSON HTTP API.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	zlog "github.com/rs/zerolog/log"

	"github.com/ayase-lab/karabox/internal/api/ws"
	"github.com/ayase-lab/karabox/internal/engine/coordinator"
	"github.com/ayase-lab/karabox/internal/engine/fault"
	"github.com/ayase-lab/karabox/internal/infra/config"
)

// userIDHeader carries the caller identity issued by the join endpoint.
const userIDHeader = "X-User-Id"

// Server serves the HTTP API.
type Server struct {
	coord *coordinator.Coordinator
	cfg   *config.Config
	hub   *ws.Hub
}

// NewServer creates an API server over the coordinator.
func NewServer(coord *coordinator.Coordinator, cfg *config.Config, hub *ws.Hub) *Server {
	return &Server{coord: coord, cfg: cfg, hub: hub}
}

// Router builds the route tree.
func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.hub.ServeWS)

	r.Post("/session/join", s.handleJoin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)

		r.Post("/session/leave", s.handleLeave)

		r.Get("/playlists", s.handleListPlaylists)
		r.Get("/playlists/{id}", s.handleGetPlaylist)
		r.Get("/playlists/{id}/entries", s.handleListEntries)
		r.Post("/playlists/{id}/entries", s.handleAddSong)

		r.Post("/entries/{id}/vote", s.handleUpvote)
		r.Delete("/entries/{id}/vote", s.handleDownvote)

		r.Get("/quota", s.handleGetQuota)

		r.Get("/poll", s.handleGetPoll)
		r.Post("/poll/vote", s.handlePollVote)

		r.Get("/library/whitelist", s.handleWhitelist)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser, s.requireOperator)

		r.Post("/playlists", s.handleCreatePlaylist)
		r.Put("/playlists/{id}", s.handleEditPlaylist)
		r.Delete("/playlists/{id}", s.handleDeletePlaylist)
		r.Put("/playlists/{id}/current", s.handleSetCurrent)
		r.Put("/playlists/{id}/public", s.handleSetPublic)
		r.Post("/playlists/{id}/shuffle", s.handleShuffle)

		r.Put("/entries/{id}/position", s.handleMoveEntry)
		r.Post("/entries/remove", s.handleRemoveEntries)
		r.Post("/entries/accept", s.handleAcceptEntries)
		r.Post("/entries/refuse", s.handleRefuseEntries)

		r.Get("/criteria", s.handleListCriteriaSets)
		r.Post("/criteria", s.handleCreateCriteriaSet)
		r.Delete("/criteria/{id}", s.handleDeleteCriteriaSet)
		r.Put("/criteria/{id}/activate", s.handleActivateCriteriaSet)
		r.Post("/criteria/{id}/criteria", s.handleAddCriterion)
		r.Delete("/criteria/{id}/criteria/{index}", s.handleRemoveCriterion)

		r.Get("/library/blacklist", s.handleBlacklist)

		r.Post("/poll/start", s.handleStartPoll)
		r.Post("/playback/started", s.handleSongStarted)
		r.Post("/playback/about-to-end", s.handleSongAboutToEnd)
		r.Post("/playback/stopped", s.handlePlaybackStopped)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// requireUser rejects requests without a known user identity.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userIDHeader)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing user identity")
			return
		}
		if _, err := s.coord.Users().Get(userID); err != nil {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireOperator gates management endpoints.
func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.coord.Users().IsOperator(r.Header.Get(userIDHeader)) {
			writeError(w, http.StatusForbidden, "operator rights required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeFaultError maps the engine error taxonomy onto HTTP statuses.
func writeFaultError(w http.ResponseWriter, err error) {
	switch {
	case fault.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case fault.IsPolicy(err):
		writeError(w, http.StatusForbidden, err.Error())
	case fault.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case fault.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	case fault.IsQuotaExceeded(err):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		zlog.Error().Msgf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
