package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datainsight/datainsight/internal/api"
	"github.com/datainsight/datainsight/internal/auth"
	catalogpostgres "github.com/datainsight/datainsight/internal/catalog/postgres"
	"github.com/datainsight/datainsight/internal/config"
	"github.com/datainsight/datainsight/internal/describe"
	"github.com/datainsight/datainsight/internal/docstore"
	"github.com/datainsight/datainsight/internal/inference"
	"github.com/datainsight/datainsight/internal/ingest"
	"github.com/datainsight/datainsight/internal/insight"
	"github.com/datainsight/datainsight/internal/maintenance"
	"github.com/datainsight/datainsight/internal/nl2sql"
	"github.com/datainsight/datainsight/internal/observability"
	duckdbengine "github.com/datainsight/datainsight/internal/query/duckdb"
	s3store "github.com/datainsight/datainsight/internal/storage/s3"
	"github.com/datainsight/datainsight/internal/textgen"
)

func main() {
	cfg, err := config.LoadFromEnv("datainsight-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	catalogDB, err := catalogpostgres.Open(context.Background(), catalogpostgres.DBConfig{
		DSN:             cfg.Catalog.DSN,
		ApplicationName: cfg.Service.Name,
		MaxOpenConns:    cfg.Catalog.MaxOpenConns,
		MaxIdleConns:    cfg.Catalog.MaxIdleConns,
		ConnMaxIdleTime: cfg.Catalog.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()

	catalogRepo := catalogpostgres.NewRepository(catalogDB)
	objectStore, err := s3store.New(context.Background(), s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}
	queryEngine := duckdbengine.NewEngine(objectStore)
	queryEngine.TempDir = cfg.Query.TempDir

	store := docstore.New(catalogRepo, objectStore, queryEngine, logger)
	store.RowLimit = cfg.Query.RowLimit

	var completer textgen.Completer
	if cfg.RequireAI() == nil {
		completer, err = textgen.New(context.Background(), textgen.Config{
			Provider:     cfg.AI.Provider,
			BaseURL:      cfg.AI.BaseURL,
			APIKey:       cfg.AI.APIKey,
			Model:        cfg.AI.Model,
			Temperature:  cfg.AI.Temperature,
			Timeout:      cfg.AI.Timeout,
			RateLimitRPS: cfg.AI.RateLimitRPS,
		})
		if err != nil {
			logger.Error("failed to initialize text generation provider", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Warn("no ai api key configured; description and query routes are disabled")
	}

	classifier, err := inference.New(cfg.Inference.Classifier, completer, cfg.Inference.SampleLimit, logger)
	if err != nil {
		logger.Error("failed to initialize type classifier", slog.Any("error", err))
		os.Exit(1)
	}
	ingestor := ingest.New(store, classifier, cfg.Ingest.BatchSize, logger)
	ingestor.EmptyAsNull = cfg.Ingest.EmptyAsNull

	descriptions := describe.NewStore(catalogRepo, logger)
	deps := api.Dependencies{
		Logger:            logger,
		Collections:       store,
		Uploads:           objectStore,
		Ingestor:          ingestor,
		DescriptionReader: descriptions,
		Integrity:         &maintenance.Service{Catalog: catalogRepo, ObjectStore: objectStore, Logger: logger},
		Readiness: api.CombineReadinessChecks(
			catalogRepo.HealthCheck,
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if completer != nil {
		translator := &nl2sql.Translator{
			Store:           store,
			Descriptions:    descriptions,
			Completer:       completer,
			SampleDocuments: cfg.Query.SampleDocuments,
			RowLimit:        cfg.Query.RowLimit,
			Logger:          logger,
		}
		deps.QueryTranslator = translator
		deps.DescriptionWriter = &describe.Generator{
			Prober:      store,
			Store:       descriptions,
			Completer:   completer,
			SampleLimit: cfg.Query.DescriptionSamples,
			Concurrency: cfg.Query.SampleConcurrency,
			Logger:      logger,
		}
		deps.Insight = &insight.Service{
			Translator: translator,
			Executor:   &insight.Executor{Store: store, RowLimit: cfg.Query.RowLimit, Logger: logger},
			Logger:     logger,
		}
	}
	if cfg.Auth.Required {
		validator, err := auth.NewPasscodeValidator(cfg.Auth.Passcode)
		if err != nil {
			logger.Error("failed to configure passcode auth", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
