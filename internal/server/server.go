package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/cascadehq/solvernet/internal/api/http"
	"github.com/cascadehq/solvernet/internal/api/middleware"
	"github.com/cascadehq/solvernet/internal/config"
	"github.com/cascadehq/solvernet/internal/credentials"
	"github.com/cascadehq/solvernet/internal/dispatch"
	"github.com/cascadehq/solvernet/internal/ledger"
	"github.com/cascadehq/solvernet/internal/logging"
	"github.com/cascadehq/solvernet/internal/monitoring"
	"github.com/cascadehq/solvernet/internal/providers/remote"
	"github.com/cascadehq/solvernet/internal/registry"
	"github.com/cascadehq/solvernet/internal/resilience"
	"github.com/cascadehq/solvernet/internal/shared/types"
	"github.com/cascadehq/solvernet/internal/tracker"
)

// sweepInterval paces the background retention sweep over the tracker and the
// cost ledger.
const sweepInterval = time.Hour

// Server wires the engine together and serves the admin API.
type Server struct {
	cfg    *config.Config
	logger *logging.Logger

	registry   *registry.Registry
	breaker    *resilience.Breaker
	tracker    *tracker.Tracker
	pool       *credentials.Pool
	ledger     *ledger.Ledger
	dispatcher *dispatch.Dispatcher
	metrics    *monitoring.Metrics

	httpServer *http.Server
	stop       chan struct{}
}

// New builds the engine from configuration: collaborators, metered provider
// strategies from the credential seed file, and the admin API router.
func New(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger.Info("initializing engine",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.Int("circuit_threshold", cfg.Circuit.FailureThreshold),
	)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.New(promRegistry)

	breaker := resilience.New(resilience.Settings{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		Timeout:          cfg.Circuit.Timeout(),
		OnStateChange: func(key string, from, to resilience.State) {
			logger.Info("circuit state changed",
				zap.String("strategy", key),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
			if to == resilience.StateOpen {
				metrics.RecordCircuitTrip(key)
			}
		},
	})

	reg := registry.New(registry.WithLogger(logger.Named("registry")))
	trk := tracker.New(cfg.Tracker.MaxRetention, nil)
	led := ledger.New(cfg.Cost.MaxEntries, cfg.Cost.RetentionDays, nil)
	pool := credentials.NewPool(nil)

	dispatcher := dispatch.New(reg, breaker, trk, led,
		dispatch.WithLogger(logger.Named("dispatch")),
		dispatch.WithObserver(metrics),
	)

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		registry:   reg,
		breaker:    breaker,
		tracker:    trk,
		pool:       pool,
		ledger:     led,
		dispatcher: dispatcher,
		metrics:    metrics,
		stop:       make(chan struct{}),
	}

	if err := s.seedProviders(); err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           s.buildRouter(promRegistry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sweepLoop()

	return s, nil
}

// seedProviders loads the credential file and registers a remote strategy
// per declared provider.
func (s *Server) seedProviders() error {
	seeds, err := config.LoadCredentialSeeds(s.cfg.Providers.CredentialsFile)
	if err != nil {
		return err
	}

	for _, seed := range seeds {
		for _, key := range seed.Keys {
			s.pool.Add(seed.Provider, key)
		}
		for task, cost := range seed.Costs {
			s.ledger.SetDefaultCost(seed.Provider, types.TaskType(task), cost)
		}

		strategy := remote.New(s.remoteConfig(seed), s.pool, s.logger).WithObserver(s.metrics)

		s.registry.Register(seed.Provider, func() (types.Strategy, error) {
			return strategy, nil
		}, seedCapabilities(seed))

		s.metrics.SetProviderAvailable(seed.Provider, s.pool.ProviderAvailable(seed.Provider))
		s.logger.Info("registered metered provider",
			zap.String("provider", seed.Provider),
			zap.Int("keys", len(seed.Keys)),
		)
	}
	return nil
}

// remoteConfig combines a credential seed with the deployment-wide retry
// settings into one provider strategy config.
func (s *Server) remoteConfig(seed config.CredentialSeed) remote.Config {
	return remote.Config{
		Provider:     seed.Provider,
		BaseURL:      seed.BaseURL,
		RPS:          seed.RPS,
		RetryMax:     s.cfg.Retry.MaxAttempts,
		RetryWaitMin: s.cfg.Retry.Backoff(),
		RetryWaitMax: s.cfg.Retry.MaxBackoff(),
	}
}

// seedCapabilities translates a credential seed into registered capabilities,
// defaulting to every known task type when the seed does not narrow them.
func seedCapabilities(seed config.CredentialSeed) types.Capabilities {
	taskTypes := []types.TaskType{
		types.TaskRecaptchaV2,
		types.TaskRecaptchaV3,
		types.TaskHCaptcha,
		types.TaskTurnstile,
		types.TaskFunCaptcha,
		types.TaskDataDome,
		types.TaskGeeTest,
	}
	if len(seed.TaskTypes) > 0 {
		taskTypes = make([]types.TaskType, len(seed.TaskTypes))
		for i, t := range seed.TaskTypes {
			taskTypes[i] = types.TaskType(t)
		}
	}

	rate := seed.BaseSuccessRate
	if rate <= 0 {
		rate = 0.5
	}

	return types.Capabilities{
		TaskTypes:       taskTypes,
		BaseSuccessRate: rate,
		Enabled:         true,
		Priority:        seed.Priority,
		Metered:         true,
		Provider:        seed.Provider,
	}
}

// RegisterStrategy adds a native (non-metered) strategy to the catalog.
func (s *Server) RegisterStrategy(key string, factory registry.Factory, caps types.Capabilities) {
	s.registry.Register(key, factory, caps)
}

func (s *Server) buildRouter(promRegistry *prometheus.Registry) *gin.Engine {
	if !s.cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(s.cfg.Server.CORSOrigins))
	if s.cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: s.cfg.RateLimit.RequestsPerSecond,
			Burst:             s.cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(s.dispatcher, s.registry, s.tracker, s.pool, s.ledger)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

	router.POST("/solve", handlers.Solve)
	router.POST("/solve/parallel", handlers.SolveParallel)

	router.GET("/strategies", handlers.ListStrategies)
	router.GET("/strategies/all", handlers.ListAllStrategies)
	router.POST("/strategies/:key/enable", handlers.EnableStrategy)
	router.POST("/strategies/:key/disable", handlers.DisableStrategy)
	router.GET("/strategies/:key/stats", handlers.StrategyStats)

	router.GET("/stats", handlers.AllStats)
	router.GET("/circuits", handlers.Circuits)
	router.GET("/credentials/:provider", handlers.Credentials)
	router.GET("/usage", handlers.TotalUsage)
	router.GET("/usage/:provider", handlers.Usage)

	return router
}

// sweepLoop prunes aged tracker and ledger entries until Shutdown.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tracker.ClearOld(s.cfg.Cost.RetentionDays)
			s.ledger.ClearOld(0)
			for _, provider := range s.pool.AvailableProviders() {
				s.metrics.SetProviderAvailable(provider, true)
			}
			s.logger.Debug("retention sweep complete",
				zap.Int("tracker_entries", s.tracker.Len()),
				zap.Int("ledger_entries", s.ledger.Len()),
			)
		}
	}
}

// Run serves the admin API until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("starting admin API", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops background work.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stop)
	err := s.httpServer.Shutdown(ctx)
	s.logger.Info("server stopped")
	_ = s.logger.Sync()
	return err
}
