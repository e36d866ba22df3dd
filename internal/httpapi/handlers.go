package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hperssn/gridcheck/internal/domain"
	"github.com/hperssn/gridcheck/internal/render"
	"github.com/hperssn/gridcheck/internal/session"
)

// maxFrameBytes caps uploaded frames.
const maxFrameBytes = 10 << 20

type sessionView struct {
	ID string `json:"id"`
	session.Snapshot
}

func Routes(m *session.Manager, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Post("/sessions", createSession(m, log))
	r.Get("/sessions/{id}", getSession(m, log))
	r.Delete("/sessions/{id}", removeSession(m))
	r.Post("/sessions/{id}/frames", pushFrame(m))
	r.Post("/sessions/{id}/capture", captureFrame(m, log))
	r.Post("/sessions/{id}/cells/{idx}/toggle", toggleCell(m, log))
	r.Post("/sessions/{id}/validate", validateSession(m, log))
	r.Post("/sessions/{id}/retake", retakeSession(m, log))
	r.Get("/sessions/{id}/events", StreamSessionEvents(m))
	r.Get("/sessions/{id}/overlay.png", overlay(m, log))

	return r
}

func createSession(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := m.Create("")
		if err != nil {
			respondError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, log, view(e), http.StatusCreated)
	}
}

func getSession(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := lookup(w, r, m)
		if !ok {
			return
		}
		respondJSON(w, log, view(e), http.StatusOK)
	}
}

func removeSession(m *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := m.Remove(chi.URLParam(r, "id")); err != nil {
			respondError(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func pushFrame(m *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := lookup(w, r, m)
		if !ok {
			return
		}
		if err := e.Frames.Decode(http.MaxBytesReader(w, r.Body, maxFrameBytes)); err != nil {
			respondError(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// captureFrame optionally replaces the live frame with the request body, then
// runs the face check.
func captureFrame(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := lookup(w, r, m)
		if !ok {
			return
		}
		if r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody {
			if err := e.Frames.Decode(http.MaxBytesReader(w, r.Body, maxFrameBytes)); err != nil {
				respondError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		err := e.Controller.Capture(r.Context())
		switch {
		case err == nil:
			respondJSON(w, log, view(e), http.StatusOK)
		case errors.Is(err, domain.ErrNoFaceDetected):
			respondJSON(w, log, view(e), http.StatusUnprocessableEntity)
		default:
			log.Warn("capture failed", zap.String("session", e.ID), zap.Error(err))
			respondError(w, err.Error(), statusFor(err))
		}
	}
}

func toggleCell(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := lookup(w, r, m)
		if !ok {
			return
		}
		idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
		if err != nil {
			respondError(w, "invalid cell index", http.StatusBadRequest)
			return
		}
		if err := e.Controller.Toggle(idx); err != nil {
			respondError(w, err.Error(), statusFor(err))
			return
		}
		respondJSON(w, log, view(e), http.StatusOK)
	}
}

func validateSession(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := lookup(w, r, m)
		if !ok {
			return
		}
		if _, err := e.Controller.Validate(); err != nil {
			respondError(w, err.Error(), statusFor(err))
			return
		}
		respondJSON(w, log, view(e), http.StatusOK)
	}
}

func retakeSession(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := lookup(w, r, m)
		if !ok {
			return
		}
		if err := e.Controller.Retake(); err != nil {
			respondError(w, err.Error(), statusFor(err))
			return
		}
		respondJSON(w, log, view(e), http.StatusOK)
	}
}

func overlay(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := lookup(w, r, m)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		if err := render.EncodePNG(w, e.Controller.Snapshot(), e.Frames.CaptureFrame()); err != nil {
			log.Error("render overlay", zap.String("session", e.ID), zap.Error(err))
		}
	}
}

func lookup(w http.ResponseWriter, r *http.Request, m *session.Manager) (*session.Entry, bool) {
	e, ok := m.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return e, true
}

func view(e *session.Entry) sessionView {
	return sessionView{ID: e.ID, Snapshot: e.Controller.Snapshot()}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIndexOutOfRange), errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func respondJSON(w http.ResponseWriter, log *zap.Logger, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
