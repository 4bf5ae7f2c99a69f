// Package apiserver exposes the health, statistics and metrics of the token sources over HTTP.
package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/moweilong/tokenservice/internal/apiserver/handler"
	"github.com/moweilong/tokenservice/internal/pkg/known"
	"github.com/moweilong/tokenservice/internal/pkg/middleware"
	"github.com/moweilong/tokenservice/pkg/stat"
)

// Config contains application-related configurations.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	ReportInterval  time.Duration
	// FailureThreshold raises an alarm when a source accumulates this many new failures.
	FailureThreshold int64
	Registry         *stat.Registry
	Logger           *zap.Logger
}

// Server represents the web server.
type Server struct {
	cfg      *Config
	srv      *http.Server
	reporter *stat.Reporter
	log      *zap.Logger
}

// NewServer builds the router and the statistics reporter.
func (cfg *Config) NewServer() (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("apiserver: statistics registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	metrics := prometheus.NewRegistry()
	if err := metrics.Register(stat.NewCollector(cfg.Registry)); err != nil {
		return nil, err
	}
	if err := metrics.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logging(middleware.WithLog(logger), middleware.WithIgnoreRoutes(known.RouteMetrics)),
	)

	h := handler.NewHandler(cfg.Registry)
	engine.GET(known.RouteHealthz, h.Healthz)
	engine.GET(known.RouteStats, h.Stats)
	engine.GET(known.RouteMetrics, gin.WrapH(promhttp.HandlerFor(metrics, promhttp.HandlerOpts{})))

	reporterOpts := []stat.Option{stat.WithLog(logger)}
	if cfg.ReportInterval > 0 {
		reporterOpts = append(reporterOpts, stat.WithPrintInterval(cfg.ReportInterval))
	}
	if cfg.FailureThreshold > 0 {
		reporterOpts = append(reporterOpts, stat.WithAlarm(stat.WithFailureThreshold(cfg.FailureThreshold)))
	}

	return &Server{
		cfg:      cfg,
		srv:      &http.Server{Addr: cfg.Addr, Handler: engine, ReadHeaderTimeout: 5 * time.Second},
		reporter: stat.NewReporter(cfg.Registry, reporterOpts...),
		log:      logger,
	}, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	reportCtx, stopReporter := context.WithCancel(ctx)
	defer stopReporter()
	go s.reporter.Run(reportCtx)
	go s.watchAlarms(reportCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Start to listening the incoming requests on http address", zap.String("addr", ln.Addr().String()))
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server...")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	s.log.Info("Server exited successfully.")
	return nil
}

func (s *Server) watchAlarms(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case key := <-s.reporter.Notify():
			s.log.Warn("token source keeps failing", zap.String("source", key))
		}
	}
}
