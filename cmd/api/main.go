package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/pixsift/discovery"
	"github.com/pixsift/discovery/api"
	"github.com/pixsift/discovery/db"
	"github.com/pixsift/discovery/filterengine"
	"github.com/pixsift/discovery/netminer"
	"github.com/pixsift/discovery/pattern"
	"github.com/pixsift/discovery/probe"
	"github.com/pixsift/discovery/storage"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("discovery service initializing", "version", "1.0.0")

	defaultPort := getEnv("PORT", "8080")
	defaultStoragePath := getEnv("STORAGE_BASE_PATH", "./storage")
	defaultFilterCacheSize := getEnv("FILTER_CACHE_SIZE", "1000")

	filterCacheSize, err := strconv.Atoi(defaultFilterCacheSize)
	if err != nil || filterCacheSize <= 0 {
		logger.Warn("invalid FILTER_CACHE_SIZE value, using default",
			"provided", defaultFilterCacheSize,
			"default", 1000,
		)
		filterCacheSize = 1000
	}

	// Command-line flags (override environment variables)
	port := flag.String("port", defaultPort, "Server port")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	probeConcurrency := flag.Int("probe-concurrency", 3, "Max in-flight metadata probes")
	probeTimeout := flag.Duration("probe-timeout", 10*time.Second, "Per-item metadata probe timeout")
	flag.Parse()

	// PostgreSQL database configuration (required)
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		logger.Error("DB_HOST environment variable is required")
		os.Exit(1)
	}
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "pixsift")
	dbPassword := getEnv("DB_PASSWORD", "pixsift_dev_pass")
	dbName := getEnv("DB_NAME", "pixsift")

	database, err := db.New(db.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			dbHost, dbPort, dbUser, dbPassword, dbName),
	})
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("using PostgreSQL database", "host", dbHost, "port", dbPort, "database", dbName)

	// Archive storage: S3 when a bucket is configured, filesystem otherwise.
	var store storage.Store
	if bucket := getEnv("S3_BUCKET", ""); bucket != "" {
		store, err = storage.NewS3Store(context.Background(), storage.S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          bucket,
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "") == "true",
		})
		if err != nil {
			logger.Error("failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		logger.Info("using S3 archive storage", "bucket", bucket)
	} else {
		store, err = storage.New(storage.Config{BasePath: defaultStoragePath})
		if err != nil {
			logger.Error("failed to initialize filesystem storage", "error", err)
			os.Exit(1)
		}
		logger.Info("using filesystem archive storage", "path", defaultStoragePath)
	}

	// Wire the pipeline.
	probeConfig := probe.DefaultConfig()
	probeConfig.Concurrency = *probeConcurrency
	probeConfig.Timeout = *probeTimeout
	prober := probe.New(probeConfig, nil)

	engine := filterengine.New(filterengine.Config{CacheSize: filterCacheSize}, prober)

	miner := netminer.New(netminer.DefaultConfig())
	miner.Start()

	analyzer := pattern.New(pattern.DefaultConfig(), pattern.AttributeLayout{})
	fetcher := discovery.NewFetcher(discovery.DefaultFetcherConfig(), nil)
	coordinator := discovery.NewCoordinator(analyzer, miner, engine, prober, fetcher)
	archiver := discovery.NewArchiver(discovery.DefaultArchiverConfig(), store, nil)

	server := api.NewServer(api.Config{
		Addr:        ":" + *port,
		CORSEnabled: !*disableCORS,
	}, database, coordinator, archiver)

	// Start server in a goroutine
	go func() {
		logger.Info("discovery service starting",
			"port", *port,
			"database_host", dbHost,
			"database_name", dbName,
			"storage_path", defaultStoragePath,
			"filter_cache_size", filterCacheSize,
			"probe_concurrency", *probeConcurrency,
		)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	miner.Stop()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
