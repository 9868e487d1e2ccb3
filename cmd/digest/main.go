package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"daybrief/internal/application"
	appbudget "daybrief/internal/application/budget"
	appfaults "daybrief/internal/application/faults"
	"daybrief/internal/application/pipeline"
	"daybrief/internal/config"
	"daybrief/internal/domain/digest"
	"daybrief/internal/domain/faults"
	mysqlp "daybrief/internal/infra/db/mysql"
	postgresp "daybrief/internal/infra/db/postgres"
	"daybrief/internal/infra/httpserver"
	"daybrief/internal/infra/notify"
	minioStore "daybrief/internal/infra/storage"
	filestore "daybrief/internal/infra/store"
	"daybrief/internal/logging"
	"daybrief/internal/middleware"

	aiclient "daybrief/internal/infra/ai/openai"
	"daybrief/internal/infra/collectors"
)

func main() {
	_ = godotenv.Load()

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, logCloser, err := logging.New(logging.Config{Level: cfg.Logging.Level, File: cfg.Logging.File})
	if err != nil {
		log.Fatalf("logging init error: %v", err)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	ctx := context.Background()
	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("init error: %v", err)
	}
	if app.db != nil {
		defer app.db.Close()
	}

	switch cmd {
	case "serve":
		serve(cfg, app, logger)
	case "run":
		runOnce(ctx, cfg, app, args)
	case "health":
		healthCheck(ctx, cfg, app)
	default:
		fmt.Fprintf(os.Stderr, "usage: digest [serve|run|health]\n")
		os.Exit(2)
	}
}

func loadConfig() (*config.Config, error) {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default()
	}
	return config.Load(path)
}

// app holds the wired collaborators shared by all subcommands
type app struct {
	orch     *pipeline.Orchestrator
	ledger   *appbudget.Ledger
	registry *appfaults.Registry
	repo     digest.Repository
	db       *sql.DB
	checkers map[string]middleware.HealthChecker
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	clock := application.SystemClock{}

	budgetFile, err := filestore.NewBudgetFile(cfg.Budget.StatePath)
	if err != nil {
		return nil, fmt.Errorf("budget state store: %w", err)
	}
	usageFile, err := filestore.NewUsageFile(cfg.Budget.UsagePath, cfg.Budget.UsageKeep)
	if err != nil {
		return nil, fmt.Errorf("usage store: %w", err)
	}
	errorFile, err := filestore.NewErrorFile(cfg.Errors.LogPath, cfg.Errors.Keep)
	if err != nil {
		return nil, fmt.Errorf("error store: %w", err)
	}

	// Optional database: mirrors the error log and persists run envelopes
	var (
		db       *sql.DB
		repo     digest.Repository
		dbErrors faults.EventStore
	)
	switch cfg.Database.Driver {
	case "mysql":
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		repo = mysqlp.NewRunRepository(db)
		dbErrors = mysqlp.NewErrorRepository(db)
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		repo = postgresp.NewRunRepository(db)
		dbErrors = postgresp.NewErrorRepository(db)
	}

	eventStores := []faults.EventStore{errorFile}
	if dbErrors != nil {
		eventStores = append(eventStores, dbErrors)
	}

	var notifier faults.Notifier
	if cfg.Errors.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Errors.WebhookURL, cfg.Errors.WebhookToken)
	}

	registry := appfaults.NewRegistry(
		filestore.NewMultiEventStore(eventStores...),
		notifier, clock, logger,
		appfaults.Options{
			MaxRecent: cfg.Errors.MaxRecent,
			Cooldown:  time.Duration(cfg.Errors.CooldownMinutes) * time.Minute,
		},
	)

	ledger, err := appbudget.NewLedger(appbudget.Limits{
		Daily:      cfg.Budget.DailyLimit,
		Hourly:     cfg.Budget.HourlyLimit,
		PerRequest: cfg.Budget.PerRequestLimit,
	}, budgetFile, usageFile, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("budget ledger: %w", err)
	}

	collectorsByName := make(map[string]digest.Collector, len(cfg.Sources))
	for _, s := range cfg.Sources {
		switch {
		case s.URL != "":
			timeout := time.Duration(s.TimeoutSeconds) * time.Second
			if timeout <= 0 {
				timeout = cfg.CollectTimeout()
			}
			collectorsByName[s.Name] = collectors.NewHTTPFeed(s.Name, s.URL, s.AuthToken, timeout)
		case s.Command != "":
			collectorsByName[s.Name] = collectors.NewCommandFeed(s.Name, s.Command, s.Args...)
		default:
			collectorsByName[s.Name] = nil // configured but not initialized
		}
	}
	collection := pipeline.NewCollectionStage(collectorsByName, registry, cfg.CollectTimeout(), logger)

	specs := make([]pipeline.AnalyzerSpec, 0, len(cfg.Analyzers))
	for _, a := range cfg.Analyzers {
		spec := pipeline.AnalyzerSpec{Name: a.Name, Source: a.Source, BaseCost: a.BaseCost}
		if cfg.OpenAI.APIKey != "" {
			spec.Impl = aiclient.NewAnalyzer(cfg.OpenAI.APIKey, cfg.OpenAI.Model, a.Name)
		}
		specs = append(specs, spec)
	}
	analysis := pipeline.NewAnalysisStage(specs, ledger, registry, clock, cfg.AnalyzeTimeout(), logger)

	var coordinator digest.Analyzer
	if cfg.OpenAI.APIKey != "" {
		coordinator = aiclient.NewAnalyzer(cfg.OpenAI.APIKey, cfg.OpenAI.Model, "coordinator")
	}
	synthesizer := pipeline.NewSynthesizer(coordinator, cfg.Pipeline.CoordinatorBaseCost, ledger, registry, clock, cfg.AnalyzeTimeout(), logger)

	var artifacts digest.ArtifactStore
	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return nil, fmt.Errorf("minio init: %w", err)
		}
		artifacts = store
	}

	orch := pipeline.NewOrchestrator(collection, analysis, synthesizer, ledger, registry, clock, logger, pipeline.Options{
		RunContext:    digest.Data(cfg.Context),
		Repository:    repo,
		Artifacts:     artifacts,
		HealthTimeout: cfg.HealthTimeout(),
	})

	checkers := map[string]middleware.HealthChecker{
		"state_dir": &middleware.DataDirHealthChecker{Dir: filepath.Dir(cfg.Budget.StatePath)},
	}
	if db != nil {
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	return &app{
		orch:     orch,
		ledger:   ledger,
		registry: registry,
		repo:     repo,
		db:       db,
		checkers: checkers,
	}, nil
}

func serve(cfg *config.Config, a *app, logger *slog.Logger) {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestLogger(logger))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	if len(cfg.Auth.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(cfg.Auth.APIKeys))
		mux.Use(middleware.RateLimitMiddleware(60, 1))
	}
	mux.Mount("/", httpserver.NewRouter(a.orch, a.ledger, a.registry, a.repo, a.checkers))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute, // waited digest runs can be slow
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// runOnce generates a single digest and writes the envelope to stdout or,
// with -output, to a file
func runOnce(ctx context.Context, cfg *config.Config, a *app, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	hours := fs.Int("window-hours", cfg.Pipeline.DefaultWindowHours, "look-back window in hours")
	output := fs.String("output", "", "write the envelope JSON to this file instead of stdout")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(ctx, 15*time.Minute)
	defer cancel()

	env, err := a.orch.Run(ctx, time.Duration(*hours)*time.Hour)
	if err != nil {
		log.Fatalf("digest run error: %v", err)
	}

	if err := writeEnvelope(env, *output); err != nil {
		log.Fatalf("write envelope: %v", err)
	}
	os.Exit(runExitCode(env.Status))
}

// writeEnvelope renders the envelope as indented JSON to stdout or, when
// path is set, to that file
func writeEnvelope(env *digest.Envelope, path string) error {
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	if path == "" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// runExitCode maps a run outcome to the process exit code. A degraded run
// still produced a usable digest, so only a fallback fails the command.
func runExitCode(status digest.Status) int {
	if status == digest.StatusFallback {
		return 1
	}
	return 0
}

func healthCheck(ctx context.Context, cfg *config.Config, a *app) {
	ctx, cancel := context.WithTimeout(ctx, cfg.HealthTimeout()+5*time.Second)
	defer cancel()

	report := a.orch.HealthCheck(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatalf("encode error: %v", err)
	}
	if report.Overall == digest.Unhealthy {
		os.Exit(1)
	}
}
