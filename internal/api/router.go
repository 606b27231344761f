package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/netmuxd/internal/daemon"
	"github.com/nerrad567/netmuxd/internal/history"
)

// healthCheckTimeout bounds all component checks of one /health request.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, Error{Code: CodeNoRoute, Message: "no route for " + r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, Error{Code: CodeMethodNotAllowed, Message: r.Method + " not allowed on " + r.URL.Path})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/devices", s.handleListDevices)

		r.Route("/supervisors", func(r chi.Router) {
			r.Get("/", s.handleListSupervisors)
			r.Get("/{target}", s.handleGetSupervisor)
			r.Post("/{target}/wake", s.handleWakeSupervisor)
		})

		r.Get("/sessions", s.handleListSessions)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth reports the daemon and each infrastructure component.
// Any failing component makes the response 503 "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name].HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	connected := 0
	statuses := s.supervisors.Statuses()
	for _, st := range statuses {
		if st.Connected {
			connected++
		}
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"devices":    s.devices.Count(),
		"targets":    len(statuses),
		"connected":  connected,
		"components": components,
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.devices.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *Server) handleListSupervisors(w http.ResponseWriter, _ *http.Request) {
	statuses := s.supervisors.Statuses()
	writeJSON(w, http.StatusOK, map[string]any{
		"supervisors": statuses,
		"count":       len(statuses),
	})
}

func (s *Server) handleGetSupervisor(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	st, err := s.supervisors.Status(target)
	if errors.Is(err, daemon.ErrUnknownTarget) {
		writeUnknownTarget(w, target)
		return
	}
	if err != nil {
		writeInternal(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleWakeSupervisor asks the supervisor to retry now. The retry itself
// is asynchronous.
func (s *Server) handleWakeSupervisor(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	err := s.supervisors.Wake(target)
	switch {
	case errors.Is(err, daemon.ErrUnknownTarget):
		writeUnknownTarget(w, target)
	case errors.Is(err, daemon.ErrClosed):
		writeDaemonStopping(w, target)
	case err != nil:
		writeInternal(w, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{"target": target, "woken": true})
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeHistoryUnavailable(w)
		return
	}

	limit := history.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > history.MaxListLimit {
			writeInvalidLimit(w, v, history.MaxListLimit)
			return
		}
		limit = n
	}

	sessions, err := s.sessions.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing sessions failed", "error", err)
		writeInternal(w, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []history.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}
