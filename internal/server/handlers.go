package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/liminalpurple/visionary-vault/internal/library"
)

const maxPatchBytes = 64 << 10

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, library.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, library.ErrInvalidPatch):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.WithField("path", r.URL.Path).WithError(err).Error("Request failed")
	}
	writeJSON(w, status, errorResponse{Detail: err.Error()})
}

// GET /api/images?tags=a,b
func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	tags := library.ParseTags(r.URL.Query().Get("tags"))
	images, err := s.store.List(r.Context(), tags)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if images == nil {
		images = []library.Image{}
	}
	writeJSON(w, http.StatusOK, images)
}

// GET /api/image/{id}
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, img)
}

// PATCH /api/image/{id}
func (s *Server) handlePatchImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch library.Patch
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPatchBytes))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := json.Unmarshal(body, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid JSON body: " + err.Error()})
		return
	}

	img, err := s.store.Update(r.Context(), id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.log.WithField("image_id", id).Info("Image metadata updated")
	s.hub.Publish(library.Event{Type: library.EventImageUpdated, ImageID: id})
	writeJSON(w, http.StatusOK, img)
}

// GET /api/tags
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.TagCounts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), s.opts.TopTags)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
