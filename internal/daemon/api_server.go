package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"reelrecon/internal/config"
	"reelrecon/internal/logging"
)

const (
	maxTrackBody      = 64 << 10
	defaultEventLimit = 200
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Daemon.APIBind),
		token:  strings.TrimSpace(cfg.Daemon.APIToken),
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.requireToken(s.handleStatus))
	mux.HandleFunc("/api/events", s.requireToken(s.handleEvents))
	mux.HandleFunc("/api/track", s.requireToken(s.handleTrack))
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse(s.daemon.Status()))
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	since, err := parseInt(query.Get("since"), 0)
	if err != nil || since < 0 {
		s.writeError(w, http.StatusBadRequest, "invalid since")
		return
	}
	limit, err := parseInt(query.Get("limit"), defaultEventLimit)
	if err != nil || limit <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	log := s.daemon.session.Events()
	events := log.Since(since)
	if len(events) > int(limit) {
		events = events[:limit]
	}
	next := since
	if len(events) > 0 {
		next = events[len(events)-1].Seq
	}
	s.writeJSON(w, http.StatusOK, EventsResponse{Events: events, Next: next})
}

func (s *apiServer) handleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req TrackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTrackBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.JobID = strings.TrimSpace(req.JobID)
	if req.JobID == "" {
		s.writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	added := s.daemon.session.Track(r.Context(), req.JobID, req.Kind, strings.TrimSpace(req.BatchID))
	s.writeJSON(w, http.StatusAccepted, TrackResponse{JobID: req.JobID, Added: added})
}

func parseInt(raw string, fallback int64) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
