package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apperrors "github.com/helloworldxdwastaken/noxa-core/internal/errors"
	"github.com/helloworldxdwastaken/noxa-core/internal/history"
	"github.com/helloworldxdwastaken/noxa-core/internal/monitoring"
	"github.com/helloworldxdwastaken/noxa-core/internal/offline"
	"github.com/helloworldxdwastaken/noxa-core/internal/playback"
)

// server exposes the offline library over HTTP.
type server struct {
	store    *offline.Store
	resolver *playback.Resolver
	journal  *history.Store
	health   *monitoring.HealthChecker
	log      *zap.Logger
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /v1/offline/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /v1/offline/playlists", s.handleDownloadPlaylist)
	mux.HandleFunc("DELETE /v1/offline/playlists/{id}", s.handleRemovePlaylist)
	mux.HandleFunc("POST /v1/offline/tracks", s.handleDownloadTrack)
	mux.HandleFunc("DELETE /v1/offline/tracks/{id}", s.handleRemoveTrack)
	mux.HandleFunc("DELETE /v1/offline/playlists/{id}/tracks/{trackID}", s.handleRemoveTrackFromPlaylist)
	mux.HandleFunc("GET /v1/offline/history", s.handleHistory)

	mux.HandleFunc("GET /v1/playback/tracks/{id}/source", s.handlePlaybackSource)

	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	check := s.health.Check(len(snap.Tracks), len(snap.Playlists), len(snap.ActivePlaylists)+len(snap.ActiveTracks))

	status := http.StatusOK
	if check.Status == monitoring.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, check)
}

func (s *server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *server) handleDownloadPlaylist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Playlist offline.PlaylistInfo `json:"playlist"`
		Tracks   []offline.TrackInfo  `json:"tracks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Playlist.ID == 0 {
		http.Error(w, "playlist id is required", http.StatusBadRequest)
		return
	}

	// Playlist downloads run long; kick off and report accepted. The
	// store's duplicate guard makes repeated submissions harmless.
	go func() {
		if err := s.store.DownloadPlaylist(context.Background(), req.Playlist, req.Tracks); err != nil {
			s.log.Warn("playlist download rejected",
				zap.Int64("playlist_id", req.Playlist.ID), zap.Error(err))
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "playlist_id": req.Playlist.ID})
}

func (s *server) handleDownloadTrack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Track      offline.TrackInfo     `json:"track"`
		PlaylistID int64                 `json:"playlist_id"`
		Playlist   *offline.PlaylistInfo `json:"playlist"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.store.DownloadTrack(r.Context(), req.Track, req.PlaylistID, req.Playlist); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *server) handleRemovePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.RemovePlaylist(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.RemoveTrack(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRemoveTrackFromPlaylist(w http.ResponseWriter, r *http.Request) {
	playlistID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	trackID, ok := s.pathID(w, r, "trackID")
	if !ok {
		return
	}
	if err := s.store.RemoveTrackFromPlaylist(trackID, playlistID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "history is disabled", http.StatusNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.journal.Recent(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *server) handlePlaybackSource(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	resp := struct {
		Audio   playback.Source `json:"audio"`
		Artwork playback.Source `json:"artwork"`
	}{
		Audio:   s.resolver.StreamSource(id),
		Artwork: s.resolver.ArtworkSource(id, r.URL.Query().Get("artwork_url")),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *server) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.GetErrorType(err) {
	case apperrors.ErrTypeValidation:
		status = http.StatusBadRequest
	case apperrors.ErrTypeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrTypeNetwork:
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
