package realtime

import (
	"encoding/json"
	"errors"
	"net/http"

	"termhub/internal/control"
	"termhub/internal/protocol"
	"termhub/internal/session"
	"termhub/internal/workspace"

	"github.com/go-chi/chi/v5"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps the registry/dispatcher error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrPolicy):
		return http.StatusForbidden
	case errors.Is(err, session.ErrCapacity):
		return http.StatusConflict
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, control.ErrBackpressure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var cfg session.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	info, err := s.dispatcher.CreateSession(cfg)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	if env, err := protocol.SessionCreated(info); err == nil {
		s.broadcast(env)
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.dispatcher.ListSessions()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if infos == nil {
		infos = []session.Info{}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.dispatcher.CloseSession(id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	if env, err := protocol.SessionClosed(id, ""); err == nil {
		s.broadcast(env)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleDirectories(w http.ResponseWriter, r *http.Request) {
	if s.workspace == nil {
		writeJSON(w, http.StatusOK, []workspace.DirectoryInfo{})
		return
	}
	writeJSON(w, http.StatusOK, s.workspace.Directories())
}
