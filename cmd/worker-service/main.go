package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Panchu11/obscura/internal/compute"
	"github.com/Panchu11/obscura/internal/config"
	"github.com/Panchu11/obscura/internal/ledger"
	"github.com/Panchu11/obscura/internal/ledger/storage"
	"github.com/Panchu11/obscura/internal/worker"
	"github.com/Panchu11/obscura/shared/logger"
	"github.com/Panchu11/obscura/shared/postgresql"
	"github.com/Panchu11/obscura/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("address", cfg.Worker.Address),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Writes from every process serialize on the store's advisory lock
	store := storage.NewPostgresStore(dbClient, appLogger.Component("store"))
	ledgerSvc, err := initLedger(ctx, &cfg.Worker, store, appLogger.Component("ledger"))
	if err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}

	appLogger.Info("Ledger parameters loaded",
		slog.String("owner", ledgerSvc.Owner()),
		slog.String("min_stake", ledgerSvc.MinStake().String()),
		slog.Int64("fee_bps", ledgerSvc.Fees().BasisPoints),
	)

	runner, err := initCompute(&cfg.Compute, appLogger.Component("compute"))
	if err != nil {
		return fmt.Errorf("failed to initialize compute engine: %w", err)
	}

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	coordinator, err := initCoordinator(&cfg.Worker, ledgerSvc, runner, rabbitClient, appLogger.Component("coordinator"))
	if err != nil {
		return fmt.Errorf("failed to initialize coordinator: %w", err)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = startMetricsServer(&cfg.Metrics, cfg.App.Environment, dbClient, rabbitClient, coordinator, appLogger.Logger)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := coordinator.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Coordinator error",
			slog.Any("error", err),
		)
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		coordinator.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Coordinator stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Coordinator shutdown timeout exceeded, forcing exit",
			slog.Int("in_flight", coordinator.InFlight()),
		)
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Metrics server shutdown failed", slog.Any("error", err))
		}
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:                 cfg.Host,
		Port:                 cfg.Port,
		User:                 cfg.User,
		Password:             cfg.Password,
		Database:             cfg.Database,
		SSLMode:              cfg.SSLMode,
		MaxOpenConns:         cfg.MaxOpenConns,
		MaxIdleConns:         cfg.MaxIdleConns,
		ConnMaxLifetime:      cfg.ConnMaxLifetime,
		ConnMaxIdleTime:      cfg.ConnMaxIdleTime,
		ConnectRetries:       cfg.ConnectRetries,
		ConnectRetryInterval: cfg.ConnectInterval,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initLedger loads the parameters the api service recorded, waiting for its
// first start when needed, and builds the ledger state machine on them
func initLedger(ctx context.Context, cfg *config.WorkerConfig, store storage.Store, logger *slog.Logger) (*ledger.Ledger, error) {
	waitCtx, cancel := context.WithTimeout(ctx, cfg.ParamsWait())
	defer cancel()

	params, err := ledger.AwaitParams(waitCtx, store, time.Second, logger)
	if err != nil {
		return nil, err
	}

	return ledger.NewFromParams(store, logger, params)
}

// initCompute selects the computation engine and wraps it with per-kind budgets
func initCompute(cfg *config.ComputeConfig, logger *slog.Logger) (*compute.Runner, error) {
	overrides, err := cfg.BudgetOverrides()
	if err != nil {
		return nil, err
	}
	budgets := compute.NewBudgets(cfg.BudgetFactor, overrides)

	var engine compute.Engine
	switch cfg.Engine {
	case config.EngineDocker:
		images, err := cfg.DockerImages()
		if err != nil {
			return nil, err
		}
		engine, err = compute.NewDockerEngine(compute.DockerConfig{
			Image:    cfg.Docker.Image,
			Images:   images,
			MemoryMB: cfg.Docker.MemoryMB,
			NanoCPUs: cfg.Docker.NanoCPUs,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	default:
		engine = compute.NewSimulatedEngine(cfg.DelayFactor())
	}

	logger.Info("Compute engine selected",
		slog.String("engine", engine.Name()),
		slog.Float64("budget_factor", cfg.BudgetFactor),
	)

	return compute.NewRunner(engine, budgets, logger), nil
}

// initRabbitMQ initializes the RabbitMQ client bound to the worker's notification queue
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		BindingKeys:        cfg.BindingKeys,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initCoordinator wires the worker identity, filters and collaborators
func initCoordinator(cfg *config.WorkerConfig, ledgerSvc *ledger.Ledger, runner *compute.Runner, consumer *rabbitmq.Client, logger *slog.Logger) (*worker.Coordinator, error) {
	kinds, err := cfg.ComputationKinds()
	if err != nil {
		return nil, err
	}
	minReward, err := cfg.MinRewardAmount()
	if err != nil {
		return nil, err
	}

	coordCfg := &worker.Config{
		Logger:            logger,
		Ledger:            ledgerSvc,
		Computer:          runner,
		Consumer:          consumer,
		Address:           cfg.Address,
		Name:              cfg.Name,
		AutoRegister:      cfg.AutoRegister,
		Concurrency:       cfg.Concurrency,
		ReconcileInterval: cfg.ReconcileInterval,
		PageSize:          cfg.PageSize,
		Kinds:             kinds,
		MinReward:         minReward,
		ResumeAssigned:    cfg.ResumeAssigned,
	}
	if cfg.AutoRegister {
		stake, err := cfg.StakeAmount()
		if err != nil {
			return nil, err
		}
		coordCfg.Stake = stake
	}

	return worker.NewCoordinator(coordCfg)
}

// startMetricsServer exposes /health and Prometheus metrics on the metrics port
func startMetricsServer(cfg *config.MetricsConfig, environment string, dbClient *postgresql.Client, rabbitClient *rabbitmq.Client, coordinator *worker.Coordinator, logger *slog.Logger) *http.Server {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{
			"status":    "healthy",
			"service":   "obscura-worker-service",
			"worker":    coordinator.Address(),
			"in_flight": coordinator.InFlight(),
		}
		if err := dbClient.HealthCheck(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["database"] = err.Error()
		}
		if !rabbitClient.IsConnected() {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["rabbitmq"] = "disconnected"
		}
		c.JSON(status, body)
	})
	r.GET(path, gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting metrics server",
			slog.String("address", srv.Addr),
			slog.String("path", path),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	return srv
}
