package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/etlfabric/etlfabric-api/internal/authz"
	"github.com/etlfabric/etlfabric-api/internal/catalog"
	"github.com/etlfabric/etlfabric-api/internal/config"
	"github.com/etlfabric/etlfabric-api/internal/connector"
	"github.com/etlfabric/etlfabric-api/internal/crypto"
	"github.com/etlfabric/etlfabric-api/internal/dispatch"
	"github.com/etlfabric/etlfabric-api/internal/engine"
	"github.com/etlfabric/etlfabric-api/internal/events"
	"github.com/etlfabric/etlfabric-api/internal/execution"
	"github.com/etlfabric/etlfabric-api/internal/handlers"
	"github.com/etlfabric/etlfabric-api/internal/middleware"
	"github.com/etlfabric/etlfabric-api/internal/migration"
	"github.com/etlfabric/etlfabric-api/internal/models"
	"github.com/etlfabric/etlfabric-api/internal/readiness"
	"github.com/etlfabric/etlfabric-api/internal/repository"
	"github.com/etlfabric/etlfabric-api/internal/routes"
	"github.com/etlfabric/etlfabric-api/internal/scheduler"
	"github.com/etlfabric/etlfabric-api/internal/temporal"
	"github.com/etlfabric/etlfabric-api/internal/temporal/activities"
	"github.com/etlfabric/etlfabric-api/internal/temporal/workflows"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config         *config.Config
	db             *sql.DB
	temporalClient tc.Client
	crypto         *crypto.Service
	runs           *execution.Service
	dispatcher     dispatch.Dispatcher
	orchestrator   *scheduler.Orchestrator
	logger         zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg := config.Load()

	cryptoSvc, err := crypto.NewService(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid encryption key")
	}

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	// Initialize Temporal client.
	temporalClient, err := tc.Dial(tc.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporal.NewLogAdapter(logger),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	defer temporalClient.Close()

	runRepo := repository.NewRunRepository(db)
	emitter := events.NewLogEmitter(logger)
	runService := execution.NewService(runRepo, emitter, logger)
	dispatcher := dispatch.NewTemporalDispatcher(temporalClient, logger)

	// Create the application instance.
	app := &application{
		config:         cfg,
		db:             db,
		temporalClient: temporalClient,
		crypto:         cryptoSvc,
		runs:           runService,
		dispatcher:     dispatcher,
		logger:         logger,
	}

	// Start the Temporal worker in a separate goroutine.
	temporalWorker := app.startTemporalWorker(logger)

	// Start the schedule orchestrator and rebuild its job table.
	app.orchestrator = scheduler.NewOrchestrator(
		repository.NewScheduleRepository(db),
		app.scheduleTrigger(),
		logger,
	)
	if _, err := app.orchestrator.SyncAll(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to sync schedules")
	}
	app.orchestrator.Start()

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins(cfg.CORS.AllowedOrigins),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, temporalWorker, logger)

	logger.Info().Msg("Application terminated.")
}

// scheduleTrigger returns the callback fired on every cron tick: create
// a pending run for the schedule's target and enqueue it. A duplicate
// while one is in flight cancels the fresh run, keeping the audit trail.
func (app *application) scheduleTrigger() scheduler.TriggerFunc {
	return func(s models.Schedule) {
		logger := app.logger.With().
			Str("job_id", scheduler.JobID(s.ID)).
			Logger()

		run, err := app.runs.Create(s.OrgID, s.TargetType, s.TargetID)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create scheduled run")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err = app.dispatcher.Dispatch(ctx, dispatch.Message{
			RunID:      run.ID,
			OrgID:      s.OrgID,
			TargetType: s.TargetType,
			TargetID:   s.TargetID,
			Scheduled:  true,
		})
		if err != nil {
			if _, dup := err.(*dispatch.ErrDuplicate); dup {
				logger.Warn().Int64("run_id", run.ID).Msg("Previous run still in flight, coalescing")
			} else {
				logger.Error().Err(err).Int64("run_id", run.ID).Msg("Failed to dispatch scheduled run")
			}
			if cancelErr := app.runs.Cancel(s.OrgID, run.ID); cancelErr != nil {
				logger.Error().Err(cancelErr).Int64("run_id", run.ID).Msg("Failed to cancel undispatched run")
			}
		}
	}
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	// Repositories
	connRepo := repository.NewConnectionRepository(app.db)
	pipelineRepo := repository.NewPipelineRepository(app.db)
	scheduleRepo := repository.NewScheduleRepository(app.db)
	catalogRepo := repository.NewCatalogRepository(app.db)

	catalogService := catalog.NewService(catalogRepo, logger)

	// Handlers
	authMiddleware := authz.NewMiddleware(app.config.JWTSecret)
	connHandler := handlers.NewConnectionHandler(connRepo, app.crypto, logger)
	pipelineHandler := handlers.NewPipelineHandler(pipelineRepo, connRepo, app.runs, app.dispatcher, logger)
	runHandler := handlers.NewRunHandler(app.runs, logger)
	scheduleHandler := handlers.NewScheduleHandler(scheduleRepo, app.orchestrator, logger)
	catalogHandler := handlers.NewCatalogHandler(catalogService, logger)

	return routes.NewRouter(authMiddleware, connHandler, pipelineHandler, runHandler, scheduleHandler, catalogHandler)
}

func (app *application) startTemporalWorker(logger zerolog.Logger) worker.Worker {
	runRepo := repository.NewRunRepository(app.db)
	pipelineRepo := repository.NewPipelineRepository(app.db)
	connRepo := repository.NewConnectionRepository(app.db)
	catalogRepo := repository.NewCatalogRepository(app.db)

	selector := connector.NewSelector(logger)
	executor := engine.NewExecutor(selector, logger)
	catalogService := catalog.NewService(catalogRepo, logger)
	readinessChecker := readiness.NewChecker(runRepo, pipelineRepo)

	activityImpl := activities.NewActivities(
		app.runs,
		pipelineRepo,
		connRepo,
		app.crypto,
		executor,
		catalogService,
		readinessChecker,
		logger,
	)

	w := worker.New(app.temporalClient, temporal.TaskQueueName, worker.Options{})

	w.RegisterWorkflow(workflows.RunWorkflow)
	w.RegisterActivity(activityImpl)

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		logger.Info().Msg("Starting Temporal worker...")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()

	return w
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, temporalWorker worker.Worker, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Stop firing new scheduled runs before tearing anything else down.
	app.orchestrator.Shutdown()

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop the Temporal worker.
	logger.Info().Msg("Stopping Temporal worker...")
	temporalWorker.Stop()
	logger.Info().Msg("Temporal worker stopped.")
}
