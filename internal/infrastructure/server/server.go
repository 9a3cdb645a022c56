package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/GriffinCanCode/AgentOS/termhub/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/bridge"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/keyboard"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/loop"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/router"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/workspace"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/providers/terminal"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg       *config.Config
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	tracer    *tracing.Tracer
	loop      *loop.Loop
	pty       *terminal.Manager
	bridge    *bridge.Bridge
	workspace *workspace.Workspace
	router    *gin.Engine
	http      *http.Server
}

// NewServer wires the terminal subsystem and its HTTP surface.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewDefault()
	}
	logger.Info("Initializing terminal server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("modifier", cfg.Terminal.Modifier),
	)

	mod, err := keyboard.ParsePrimary(cfg.Terminal.Modifier)
	if err != nil {
		return nil, fmt.Errorf("modifier: %w", err)
	}
	profiles, err := config.LoadProfiles(cfg.Terminal.Profiles)
	if err != nil {
		return nil, err
	}

	// Metrics first; everything below records into them
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)
	tracer := tracing.New("termhub", logger.Logger)

	l := loop.New(logger.Component("loop"))
	events := router.New(l, logger.Component("router"), metrics)

	pty := terminal.NewManager(events, terminal.Options{
		DefaultShell:  cfg.Terminal.Shell,
		DefaultDir:    cfg.Terminal.Directory,
		Rows:          cfg.Terminal.Rows,
		Cols:          cfg.Terminal.Cols,
		AllowedShells: cfg.Terminal.AllowedShells,
	}, logger.Component("pty"))

	br := bridge.New(pty, l, bridge.Config{
		QueueSize:        cfg.Terminal.QueueSize,
		BreakerThreshold: cfg.Terminal.BreakerThreshold,
		BreakerCooldown:  cfg.Terminal.BreakerCooldown,
	}, logger.Component("bridge"), metrics)

	wspace := workspace.New(l, registry.NewManager(), br, events, workspace.Config{
		DefaultDirectory: cfg.Terminal.Directory,
		DefaultShell:     cfg.Terminal.Shell,
		Modifier:         mod,
		Profiles:         profiles,
		Surface: surface.Config{
			Cells:          surface.CellMetrics{Width: cfg.Terminal.CellWidth, Height: cfg.Terminal.CellHeight},
			Scrollback:     cfg.Terminal.Scrollback,
			ResizeDebounce: cfg.Terminal.ResizeDebounce,
			FitRetries:     cfg.Terminal.FitRetries,
			FitBackoff:     cfg.Terminal.FitBackoff,
			Rows:           cfg.Terminal.Rows,
			Cols:           cfg.Terminal.Cols,
			Clipboard:      surface.DefaultClipboard(),
		},
	}, logger.Component("workspace"), metrics)
	br.OnIndicator(wspace.Indicate)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(tracing.HTTPMiddleware(tracer))
	engine.Use(monitoring.Middleware(metrics))
	engine.Use(middleware.CORS(middleware.CORSFor(cfg.Server.AllowedOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		rl.SkipPrefixes = []string{"/panel", "/metrics"}
		engine.Use(middleware.RateLimit(rl))
	}

	apihttp.NewHandlers(wspace, logger.Logger, metrics, cfg.Server.ShutdownTimeout).Register(engine)

	panels := ws.NewHandler(wspace, ws.Config{
		FramesPerSecond: cfg.Input.FramesPerSecond,
		Burst:           cfg.Input.Burst,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	}, logger.Logger, metrics)
	engine.GET("/panel", panels.HandleConnection)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	logger.Info("Server initialized successfully")

	return &Server{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
		loop:      l,
		pty:       pty,
		bridge:    br,
		workspace: wspace,
		router:    engine,
		http:      &http.Server{Addr: cfg.Server.Addr(), Handler: engine},
	}, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler { return s.router }

// Workspace returns the terminal workspace
func (s *Server) Workspace() *workspace.Workspace { return s.workspace }

// Run serves until ctx is cancelled or the listener fails, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// The loop outlives gctx: shutdown still needs it to tear surfaces down.
	g.Go(func() error {
		err := s.loop.Run(context.Background())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

// shutdown stops accepting requests, closes every connection and stops the
// loop. Every step runs even if an earlier one fails.
func (s *Server) shutdown() error {
	s.logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.workspace.Do(ctx, func() error {
		s.workspace.Shutdown()
		return nil
	}); err != nil {
		errs = append(errs, fmt.Errorf("workspace shutdown: %w", err))
	}
	if err := s.bridge.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("bridge shutdown: %w", err))
	}
	if err := s.pty.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("pty shutdown: %w", err))
	}
	s.loop.Stop()
	s.tracer.Close()

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("Shutdown incomplete", zap.Error(err))
		return err
	}
	s.logger.Info("Server stopped")
	return nil
}
