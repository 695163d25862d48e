package store

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxValueSize bounds a single stored value (LLM responses stay well under
// this; oversized payloads indicate a caller bug).
const maxValueSize = 32 << 20

// NewServer returns an HTTP handler exposing the store contract over REST.
// The remote backend (RemoteOpener) is the intended client.
//
//	GET    /runs                     list run IDs
//	GET    /runs/{run}/keys?prefix=  list keys
//	DELETE /runs/{run}/keys          clear run
//	PUT    /runs/{run}/keys/*        save value (raw body)
//	GET    /runs/{run}/keys/*        get value
//	HEAD   /runs/{run}/keys/*        check existence
//	DELETE /runs/{run}/keys/*        delete value
func NewServer(opener Opener, logger *slog.Logger) http.Handler {
	s := &server{opener: opener, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/runs", s.handleListRuns)
	r.Route("/runs/{run}", func(r chi.Router) {
		r.Get("/keys", s.handleListKeys)
		r.Delete("/keys", s.handleClear)
		r.Put("/keys/*", s.handleSave)
		r.Get("/keys/*", s.handleGet)
		r.Head("/keys/*", s.handleGet)
		r.Delete("/keys/*", s.handleDelete)
	})

	return r
}

type server struct {
	opener Opener
	logger *slog.Logger
}

func (s *server) store(w http.ResponseWriter, r *http.Request) (Store, bool) {
	runID := chi.URLParam(r, "run")
	st, err := s.opener.Open(runID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	return st, true
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.opener.ListRuns(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, map[string][]string{"runs": runs})
}

func (s *server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}

	keys, err := st.ListKeys(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, map[string][]string{"keys": keys})
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}

	if err := st.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSave(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}

	value, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxValueSize))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	if err := st.Save(r.Context(), chi.URLParam(r, "*"), value); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}

	value, err := st.Get(r.Context(), chi.URLParam(r, "*"))
	if errors.Is(err, ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	if _, err := w.Write(value); err != nil {
		s.logger.Warn("Failed to write response body", "error", err)
	}
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}

	if err := st.Delete(r.Context(), chi.URLParam(r, "*")); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", "error", err)
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
