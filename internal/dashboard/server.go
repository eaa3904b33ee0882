// Package dashboard serves the recent metrics, logs and run reports of a
// long running klinevault process as JSON.
package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"klinevault/config"
	"klinevault/internal/metrics"
	"klinevault/internal/orchestrator"
	"klinevault/logger"
)

const runHistory = 30

// Server hosts the monitoring endpoints.
type Server struct {
	cfg           config.DashboardConfig
	appName       string
	log           *logger.Log
	metricStore   *metricStore
	logStore      *logStore
	runStore      *runStore
	metricHandler metrics.MetricHandlerID
	httpServer    *http.Server
	startedAt     time.Time
}

// NewServer constructs a dashboard server when the dashboard feature is enabled.
// When the dashboard is disabled the returned server will be nil.
func NewServer(cfg config.DashboardConfig, appName string, log *logger.Log) *Server {
	if !cfg.Enabled {
		return nil
	}
	cfg.Address = normalizeAddress(cfg.Address)

	metricStore := newMetricStore(cfg.MetricsHistory)
	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	return &Server{
		cfg:           cfg,
		appName:       appName,
		log:           log,
		metricStore:   metricStore,
		logStore:      logStore,
		runStore:      newRunStore(runHistory),
		metricHandler: metrics.RegisterMetricHandler(metricStore.handle),
		startedAt:     time.Now().UTC(),
	}
}

// RecordRun makes a finished sync run visible on /api/runs.
func (s *Server) RecordRun(r orchestrator.Report) {
	if s == nil {
		return
	}
	s.runStore.add(r)
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	defer s.cleanup()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("dashboard listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	s.logStore.close()
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"app":        s.appName,
			"started_at": s.startedAt.Format(time.RFC3339),
			"uptime_s":   int64(time.Since(s.startedAt).Seconds()),
		})
	})

	router.GET("/api/metrics", func(c *gin.Context) {
		snapshot := s.metricStore.snapshot()
		payload := make([]gin.H, 0, len(snapshot))
		for _, m := range snapshot {
			payload = append(payload, gin.H{
				"timestamp": m.Timestamp.Format(time.RFC3339Nano),
				"component": m.Component,
				"name":      m.Name,
				"value":     m.Value,
				"type":      m.Type,
				"fields":    m.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"metrics": payload})
	})

	router.GET("/api/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot()})
	})

	router.GET("/api/runs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"runs": s.runStore.snapshot()})
	})

	router.GET("/api/runs/latest", func(c *gin.Context) {
		latest, ok := s.runStore.latest()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no run finished yet"})
			return
		}
		c.JSON(http.StatusOK, latest)
	})

	return router
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
