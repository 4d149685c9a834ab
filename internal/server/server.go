// Package server hosts the public chat endpoint and the admin surface. It
// owns the HTTP listeners and the websocket transport; all chat semantics
// live in internal/chat behind the Conn interface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pavan954/NOVACHAT/internal/chat"
	"github.com/pavan954/NOVACHAT/internal/config"
)

// ChatServer wires dependencies and hosts the HTTP servers.
type ChatServer struct {
	cfg       config.Config
	log       *zap.Logger
	engine    *chat.Engine
	httpSrv   *http.Server
	adminHTTP *http.Server
	ready     atomic.Bool
}

// New constructs a server. A nil engine gets built with the server's metrics
// registry in Start.
func New(cfg config.Config, logger *zap.Logger) *ChatServer {
	return &ChatServer{
		cfg: cfg,
		log: logger,
	}
}

// Start boots the public and admin servers and blocks until ctx is done or
// the listener fails.
func (s *ChatServer) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	s.engine = chat.NewEngine(s.log, chat.Options{Metrics: chat.NewMetrics(reg)})
	s.startAdminServer(reg)

	s.httpSrv = &http.Server{
		Addr:    s.cfg.ListenAddress,
		Handler: s.routes(),
	}

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGracePeriod)
		defer cancel()
		s.Shutdown(stopCtx)
	}()

	s.log.Info("chat server listening", zap.String("address", s.cfg.ListenAddress))
	s.ready.Store(true)
	err := s.httpSrv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// routes builds the public router: websocket endpoint, status, and the
// optional static UI.
func (s *ChatServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWS)
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","users":%d}`, len(s.engine.Roster()))
	})

	if s.cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))
	} else {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("NOVA Chat server. Connect a client to /ws.\n"))
		})
	}
	return r
}

func (s *ChatServer) startAdminServer(reg *prometheus.Registry) {
	if s.cfg.AdminAddress == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if s.ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not_ready"))
	})

	s.adminHTTP = &http.Server{
		Addr:    s.cfg.AdminAddress,
		Handler: mux,
	}

	go func() {
		if err := s.adminHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("admin server stopped", zap.Error(err))
		}
	}()
	s.log.Info("admin server listening", zap.String("address", s.cfg.AdminAddress))
}

// Shutdown attempts a graceful stop of both servers.
func (s *ChatServer) Shutdown(ctx context.Context) {
	s.ready.Store(false)

	if s.adminHTTP != nil {
		if err := s.adminHTTP.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("admin server shutdown", zap.Error(err))
		}
	}
	if s.httpSrv == nil {
		return
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("forced server stop", zap.Error(err))
		_ = s.httpSrv.Close()
		return
	}
	s.log.Info("chat server stopped")
}
