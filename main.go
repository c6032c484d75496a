package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/adapters/datasource"
	"github.com/schemalift-inc/schemalift-engine/pkg/adapters/metadata"
	"github.com/schemalift-inc/schemalift-engine/pkg/apperrors"
	"github.com/schemalift-inc/schemalift-engine/pkg/cache"
	"github.com/schemalift-inc/schemalift-engine/pkg/config"
	"github.com/schemalift-inc/schemalift-engine/pkg/logging"
	"github.com/schemalift-inc/schemalift-engine/pkg/models"
	"github.com/schemalift-inc/schemalift-engine/pkg/progress"
	"github.com/schemalift-inc/schemalift-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Analysis failed", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting schemalift analysis",
		zap.String("version", cfg.Version),
		zap.String("dataset", logging.SanitizeDSN(cfg.Dataset.DSN)),
		zap.String("schema", cfg.Dataset.Schema))

	source, err := datasource.Open(ctx, cfg.Dataset.DSN, cfg.Dataset.Schema, logger)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	defer source.Close()

	var metadataSource metadata.SchemaMetadataSource
	if cfg.Metadata.Path != "" {
		metadataSource = metadata.NewFileSource(cfg.Metadata.Path)
		logger.Info("Using schema metadata", zap.String("path", cfg.Metadata.Path))
	}

	sinks := []progress.Sink{progress.NewLoggerSink(logger)}
	if addr := cfg.RedisAddr(); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		sinks = append(sinks, progress.NewRedisSink(client, cfg.Redis.Channel, logger))
		logger.Info("Publishing progress to Redis", zap.String("addr", addr))
	}

	schemaCache := cache.New[[]models.Table](16, time.Duration(cfg.Dataset.CacheTTLMinutes)*time.Minute)

	engine, err := services.NewRelationshipInferenceEngine(
		source,
		metadataSource,
		schemaCache,
		progress.NewMultiSink(sinks...),
		services.AnalysisConfig{
			Concurrency:               cfg.Analysis.Concurrency,
			NamingSimilarityThreshold: cfg.Analysis.NamingSimilarityThreshold,
			MinDistinctSourceValues:   cfg.Analysis.MinDistinctSourceValues,
			MinMatchedValues:          cfg.Analysis.MinMatchedValues,
			ReviewThreshold:           cfg.Analysis.ReviewThreshold,
		},
		logger,
	)
	if err != nil {
		return err
	}

	report, err := engine.Analyze(ctx)
	if err != nil {
		if report == nil || !apperrors.IsCancelled(err) {
			return err
		}
		// Cancelled midway: the partial report is still worth writing.
		logger.Warn("Analysis cancelled, writing partial report",
			zap.Int("candidates", report.Summary.TotalCandidates))
	}

	if err := writeReport(cfg, report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	logger.Info("Report written",
		zap.String("output", cfg.Report.OutputPath),
		zap.Int("accepted", report.Summary.Accepted),
		zap.Int("errors", report.Summary.Errors))
	return nil
}

func writeReport(cfg *config.Config, report *models.RelationshipProposalReport) error {
	var payload []byte
	var err error
	if cfg.Report.Pretty {
		payload, err = json.MarshalIndent(report, "", "  ")
	} else {
		payload, err = json.Marshal(report)
	}
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	payload = append(payload, '\n')

	if cfg.Report.OutputPath == "-" || cfg.Report.OutputPath == "" {
		_, err = os.Stdout.Write(payload)
		return err
	}
	return os.WriteFile(cfg.Report.OutputPath, payload, 0644)
}
