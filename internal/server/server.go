package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mlcraft/sandboxd/internal/api"
	"github.com/mlcraft/sandboxd/internal/config"
	"github.com/mlcraft/sandboxd/internal/executor"
	"github.com/mlcraft/sandboxd/internal/limiter"
	"github.com/mlcraft/sandboxd/internal/natsbridge"
	"github.com/mlcraft/sandboxd/internal/queue"
	"github.com/mlcraft/sandboxd/internal/sandbox"
	"github.com/mlcraft/sandboxd/internal/store"
	"github.com/mlcraft/sandboxd/internal/worker"
)

type Server struct {
	conf        *config.Config
	logger      *zerolog.Logger
	httpServer  *http.Server
	engine      sandbox.Engine
	executor    *executor.Executor
	queue       *queue.Manager
	workers     []*worker.Worker
	rateLimiter *limiter.RateLimiter
	history     *store.Store
	natsConn    *nats.Conn
	bridge      *natsbridge.Bridge
	cancelFunc  context.CancelFunc
}

func New(conf *config.Config, logger *zerolog.Logger) (*Server, error) {
	engine := sandbox.NewDockerCLI(logger)

	execConf := executor.Config{
		Image:     conf.Sandbox.Image,
		Timeout:   time.Duration(conf.Sandbox.TimeoutSeconds) * time.Second,
		Memory:    conf.Sandbox.Memory,
		CPUs:      conf.Sandbox.CPUs,
		User:      conf.Sandbox.User,
		TmpfsSize: conf.Sandbox.TmpfsSize,
	}
	exec := executor.New(engine, execConf, logger)

	q := queue.NewManager(conf.QueueSize)

	var history *store.Store
	if conf.DatabaseURL != "" {
		var err error
		history, err = store.Open(context.Background(), conf.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("opening execution history store: %w", err)
		}
	}

	rl := limiter.New(
		conf.Limiter.GlobalRPS,
		conf.Limiter.PerIPRPS,
		conf.Limiter.PerIPBurst,
		conf.Limiter.MaxConcurrent,
	)
	rl.StartCleanup(5 * time.Minute)

	handler := api.NewHandler(q, execConf.Timeout)

	router := mux.NewRouter()
	router.HandleFunc("/health", handler.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.Handle("/execute", rl.Middleware(http.HandlerFunc(handler.Execute))).Methods(http.MethodPost)

	httpServer := &http.Server{
		Addr:         ":" + conf.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(conf.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(conf.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(conf.Server.IdleTimeout) * time.Second,
	}

	workers := make([]*worker.Worker, conf.Workers)
	for i := range workers {
		workers[i] = worker.New(i, exec, q, history, logger)
	}

	s := &Server{
		conf:        conf,
		logger:      logger,
		httpServer:  httpServer,
		engine:      engine,
		executor:    exec,
		queue:       q,
		workers:     workers,
		rateLimiter: rl,
		history:     history,
	}

	if conf.NatsURL != "" {
		nc, err := nats.Connect(conf.NatsURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS at %s: %w", conf.NatsURL, err)
		}
		s.natsConn = nc
		s.bridge = natsbridge.New(nc, q, execConf.Timeout, logger)
	}

	return s, nil
}

func (s *Server) Start() error {
	s.logger.Info().Str("port", s.conf.Server.Port).Msg("starting HTTP server")

	// Startup sanity check only: the executor re-probes on every call, so a
	// daemon or image that shows up later still works.
	s.checkSandbox()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel
	for _, w := range s.workers {
		go w.Start(ctx)
	}

	if s.bridge != nil {
		if err := s.bridge.Subscribe(); err != nil {
			return fmt.Errorf("subscribing on NATS: %w", err)
		}
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) checkSandbox() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.engine.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("docker daemon not reachable yet")
		return
	}
	if err := s.engine.ImageExists(ctx, s.conf.Sandbox.Image); err != nil {
		s.logger.Warn().
			Str("image", s.conf.Sandbox.Image).
			Msgf("sandbox image missing; run: docker build -t %s -f sandbox/Dockerfile .", s.conf.Sandbox.Image)
	}
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down")

	if s.bridge != nil {
		s.bridge.Drain()
	}
	if s.natsConn != nil {
		s.natsConn.Close()
	}
	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}

	if s.history != nil {
		s.history.Close()
	}
	return nil
}
