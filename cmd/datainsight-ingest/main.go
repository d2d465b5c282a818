// Command datainsight-ingest imports a local CSV file as a new collection.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	catalogpostgres "github.com/datainsight/datainsight/internal/catalog/postgres"
	"github.com/datainsight/datainsight/internal/config"
	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/docstore"
	"github.com/datainsight/datainsight/internal/inference"
	"github.com/datainsight/datainsight/internal/ingest"
	"github.com/datainsight/datainsight/internal/observability"
	duckdbengine "github.com/datainsight/datainsight/internal/query/duckdb"
	s3store "github.com/datainsight/datainsight/internal/storage/s3"
	"github.com/datainsight/datainsight/internal/textgen"
)

func main() {
	runID := flag.Bool("run-id", false, "append a run identifier to the dataset name")
	name := flag.String("name", "", "dataset name; derived from the file name when empty")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: datainsight-ingest [-run-id] [-name dataset] <file.csv>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := config.LoadFromEnv("datainsight-ingest")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	datasetName := strings.TrimSpace(*name)
	if datasetName == "" {
		suffix := ""
		if *runID || cfg.Ingest.AppendRunID {
			suffix = uuid.NewString()[:8]
		}
		datasetName, err = dataset.DatasetName(filepath.Base(path), suffix)
		if err != nil {
			logger.Error("invalid dataset name", slog.Any("error", err))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalogDB, err := catalogpostgres.Open(ctx, catalogpostgres.DBConfig{
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

	objectStore, err := s3store.New(ctx, s3store.Config{
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
	engine := duckdbengine.NewEngine(objectStore)
	engine.TempDir = cfg.Query.TempDir
	store := docstore.New(catalogpostgres.NewRepository(catalogDB), objectStore, engine, logger)

	var completer textgen.Completer
	if cfg.Inference.Classifier == config.ClassifierOracle {
		if err := cfg.RequireAI(); err != nil {
			logger.Error("oracle classifier needs an ai provider", slog.Any("error", err))
			os.Exit(1)
		}
		completer, err = textgen.New(ctx, textgen.Config{
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
	}
	classifier, err := inference.New(cfg.Inference.Classifier, completer, cfg.Inference.SampleLimit, logger)
	if err != nil {
		logger.Error("failed to initialize type classifier", slog.Any("error", err))
		os.Exit(1)
	}

	ingestor := ingest.New(store, classifier, cfg.Ingest.BatchSize, logger)
	ingestor.EmptyAsNull = cfg.Ingest.EmptyAsNull

	result, err := ingestor.Ingest(ctx, ingest.FileSource{Path: path}, datasetName)
	if err != nil {
		var aborted *ingest.AbortError
		if errors.As(err, &aborted) {
			logger.Error("ingestion aborted", slog.Int64("imported_rows", aborted.Imported), slog.Any("error", aborted.Err))
		} else {
			logger.Error("ingestion failed", slog.Any("error", err))
		}
		os.Exit(1)
	}

	encoded, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(encoded))
}
