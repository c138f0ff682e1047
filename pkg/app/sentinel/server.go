// Package sentinel implements app.Runner for the bridge sentinel process.
package sentinel

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	apphttp "github.com/chainscope/bridge-sentinel/pkg/app/http"
	"github.com/chainscope/bridge-sentinel/pkg/auth"
	"github.com/chainscope/bridge-sentinel/pkg/config"
	"github.com/chainscope/bridge-sentinel/pkg/correlation"
	"github.com/chainscope/bridge-sentinel/pkg/links"
	"github.com/chainscope/bridge-sentinel/pkg/notify"
	"github.com/chainscope/bridge-sentinel/pkg/pgutil"
	"github.com/chainscope/bridge-sentinel/pkg/store"
	"github.com/chainscope/bridge-sentinel/pkg/watcher"
)

const defaultRequestTimeout = 60

// Server holds cfg to init the sentinel process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new sentinel server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run wires every component and blocks until shutdown. Components stop in
// reverse dependency order so no producer outlives its consumer.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("sentinel config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting bridge sentinel",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("chains", len(cfg.Chains)),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() { _ = db.Close() }()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	st := store.New(db)

	limiter, closeRedis, err := s.openLimiter(ctx, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	gate := auth.NewGate(
		auth.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.TokenIssuer, cfg.Auth.TokenTTL),
		auth.NewAPIKeyService(st),
		limiter,
	)

	stream := notify.NewStreamPublisher(&cfg.Kafka, logger)
	defer func() { _ = stream.Close() }()

	hub := notify.NewHub(&cfg.Hub, gate, logger)
	hub.Start()
	defer hub.Stop()

	announcer := notify.NewAnnouncer(hub, stream, cfg.Correlation.HighRiskThreshold, logger)

	engine := correlation.NewEngine(&cfg.Correlation, st, announcer, logger)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start correlation engine: %w", err)
	}
	defer engine.Stop()

	normalizer, err := watcher.NewNormalizer(cfg.Correlation.HighValueThreshold)
	if err != nil {
		return fmt.Errorf("build normalizer: %w", err)
	}

	supervisor := watcher.NewSupervisor(cfg.Chains, watcher.DialEthereum, normalizer, st, engine, logger)
	supervisor.Start(ctx)
	defer supervisor.Close()

	stopJobs := s.startBackgroundJobs(ctx, engine, logger)
	defer stopJobs()

	s.startMetricsServer(logger)

	router := s.setupRouter(st, gate, hub, logger)

	err = apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)

	// Stop background work before deferred closes kick in.
	stopJobs()

	return err
}

// openLimiter connects Redis when rate limiting is enabled. A disabled
// limit returns a nil limiter, which the gate treats as open.
func (s *Server) openLimiter(ctx context.Context, logger *zap.Logger) (auth.Limiter, func(), error) {
	if s.cfg.Auth.RateLimitMax <= 0 {
		logger.Info("Rate limiting disabled")
		return nil, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", s.cfg.Redis.Addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", s.cfg.Redis.Addr),
		zap.Int("max_per_window", s.cfg.Auth.RateLimitMax),
		zap.Duration("window", s.cfg.Auth.RateLimitWindow),
	)

	limiter := auth.NewRateLimiter(client, s.cfg.Auth.RateLimitWindow, s.cfg.Auth.RateLimitMax)
	return limiter, func() { _ = client.Close() }, nil
}

// startBackgroundJobs schedules the pending sweep and the retention
// eviction on the correlation engine.
func (s *Server) startBackgroundJobs(ctx context.Context, engine *correlation.Engine, logger *zap.Logger) func() {
	c := cron.New()

	sweepEvery := s.cfg.Correlation.SweepInterval
	if sweepEvery > 0 {
		c.Schedule(cron.Every(sweepEvery), cron.FuncJob(func() {
			if err := engine.SweepPending(ctx); err != nil {
				logger.Warn("Pending sweep failed", zap.Error(err))
			}
		}))
		logger.Info("Scheduled pending sweep", zap.Duration("interval", sweepEvery))
	}

	retention := s.cfg.Correlation.BufferRetention
	if retention > 0 {
		c.Schedule(cron.Every(retention/2), cron.FuncJob(engine.EvictStale))
		logger.Info("Scheduled buffer eviction", zap.Duration("retention", retention))
	}

	c.Start()
	return func() { <-c.Stop().Done() }
}

// startMetricsServer exposes Prometheus metrics on the dedicated port.
func (s *Server) startMetricsServer(logger *zap.Logger) {
	if !s.cfg.Monitoring.Enabled {
		return
	}

	addr := fmt.Sprintf(":%d", s.cfg.Monitoring.MetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		logger.Info("Metrics enabled", zap.Int("port", s.cfg.Monitoring.MetricsPort))
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
}

func (s *Server) setupRouter(
	st *store.Store,
	gate *auth.Gate,
	hub *notify.Hub,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Websocket handshake manages its own deadlines, so the request
	// timeout applies to the REST surface only.
	r.Get("/ws", hub.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(time.Second * defaultRequestTimeout))
		r.Use(links.Authenticate(gate))
		links.NewHandler(st, logger).Register(r)
	})

	return r
}
