// HTTP endpoints of the booth: archive downloads, metrics and health
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	errs "photobooth/internal/errors"
	"photobooth/internal/session"
)

// SessionStatus is the read side of the orchestrator
type SessionStatus interface {
	State() session.State
	Description() string
}

// HealthStatus is the body of /health
type HealthStatus struct {
	Status        string `json:"status"`
	State         string `json:"state"`
	Description   string `json:"description"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Server serves the public archive directory under /img/
type Server struct {
	addr      string
	publicDir string
	gatherer  prometheus.Gatherer
	status    SessionStatus
	logger    logrus.FieldLogger
	started   time.Time

	mu     sync.Mutex // protects server
	server *http.Server
}

func New(addr, publicDir string, gatherer prometheus.Gatherer, status SessionStatus, logger logrus.FieldLogger) *Server {
	return &Server{
		addr:      addr,
		publicDir: publicDir,
		gatherer:  gatherer,
		status:    status,
		logger:    logger.WithField("component", "server"),
		started:   time.Now(),
	}
}

// Handler returns the routing of all endpoints
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/img/", http.StripPrefix("/img/", noListing(http.FileServer(http.Dir(s.publicDir)))))

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	}

	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := HealthStatus{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if s.status != nil {
		status.State = s.status.State().String()
		status.Description = s.status.Description()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.WithError(err).Warn("Failed to write health status")
	}
}

// noListing hides directory indexes so archive names cannot be guessed
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || r.URL.Path[len(r.URL.Path)-1] == '/' {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx ends
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errs.Wrap(errors.New("server already running"), "Server", "Run", "start")
	}
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{"addr": s.addr, "public_dir": s.publicDir}).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errs.Wrap(err, "Server", "Run", "listen on "+s.addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errs.Wrap(err, "Server", "Run", "shutdown")
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
