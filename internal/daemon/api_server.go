package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"uttervault/internal/api"
	"uttervault/internal/catalog"
	"uttervault/internal/config"
	"uttervault/internal/export"
	"uttervault/internal/logging"
	"uttervault/internal/observe"
	"uttervault/internal/services"
)

const maxExportRequestBytes = 1 << 20

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/utterances", srv.handleUtterances)
	mux.HandleFunc("/api/export", srv.handleExport)
	mux.HandleFunc("/api/export/status", srv.handleExportStatus)

	var handler http.Handler = mux
	handler = authMiddleware(cfg.Paths.APIToken, handler)
	handler = observe.Middleware(d.metrics, srv.logger)(handler)
	srv.handler = requestIDMiddleware(handler)
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Minute,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		StartedAt:    api.FormatTime(status.StartedAt),
		LockFilePath: status.LockFilePath,
		StoreDriver:  s.daemon.cfg.Store.Driver,
		Storage:      s.daemon.cfg.Storage.Backend,
		Downloading:  status.Downloading,
		Dependencies: api.FromDependencies(status.Dependencies),
		Checks:       api.FromChecks(status.Checks),
	})
}

func (s *apiServer) handleUtterances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	page, err := api.ParsePage(query.Get("page"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.daemon.catalog.List(r.Context(), page, query.Get("language"))
	if err != nil {
		logging.WithContext(r.Context(), s.logger).Error("list utterances failed", logging.Error(err))
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, api.ExportStatus{Downloading: s.daemon.pipeline.Downloading()})
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.ExportRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxExportRequestBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read request body failed")
		return
	}
	if len(body) > maxExportRequestBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid export request: "+err.Error())
			return
		}
	}

	out := &responseDeliverer{w: w}
	var (
		outcome export.Outcome
		runErr  error
	)
	if req.IDs != nil {
		outcome, runErr = s.daemon.pipeline.ExportByIDsTo(r.Context(), req.IDs, out)
	} else {
		filter := catalog.Filter{}
		if req.Language != nil {
			filter.Language = *req.Language
		}
		outcome, runErr = s.daemon.pipeline.ExportByFilterTo(r.Context(), filter, out)
	}
	if out.written {
		return
	}
	s.writeJSON(w, exportStatusCode(outcome, runErr), api.FromOutcome(outcome))
}

func exportStatusCode(outcome export.Outcome, err error) int {
	switch outcome.Status {
	case export.StatusBusy:
		return http.StatusConflict
	case export.StatusSkipped:
		return http.StatusOK
	case export.StatusNoMatches:
		return http.StatusNotFound
	case export.StatusCompleted:
		return http.StatusOK
	}
	switch {
	case errors.Is(err, export.ErrNoRecords):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrExternalTool), errors.Is(err, services.ErrTransient):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// responseDeliverer streams the finished archive to the HTTP client.
type responseDeliverer struct {
	w       http.ResponseWriter
	written bool
}

func (d *responseDeliverer) Deliver(_ context.Context, name string, data []byte) (string, error) {
	header := d.w.Header()
	header.Set("Content-Type", "application/zip")
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	header.Set("Content-Length", strconv.Itoa(len(data)))
	d.w.WriteHeader(http.StatusOK)
	d.written = true
	if _, err := d.w.Write(data); err != nil {
		return "", fmt.Errorf("write archive response: %w", err)
	}
	return "http-response", nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
