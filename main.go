package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"pdc/backend/features/capture"
	"pdc/backend/features/stats"
	"pdc/backend/internal/adapter/gemini"
	wstore "pdc/backend/internal/adapter/weaviate"
	"pdc/backend/internal/config"
	"pdc/backend/internal/logger"
	"pdc/backend/internal/middleware"
	"pdc/backend/internal/vector"
	"pdc/backend/internal/worker"
)

func main() {
	// Structured JSON logs with the correlation ID stamped from context.
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Database Connection
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("failed to open db connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		slog.Error("failed to ping db after retries", "error", err)
		os.Exit(1)
	}

	// 3. Run Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		slog.Error("failed to create migration driver", "error", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		slog.Error("failed to create migration instance", "error", err)
		os.Exit(1)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied successfully")

	// 4. Weaviate Connection & Schema
	wClient, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.WeaviateHost,
		Scheme: cfg.WeaviateScheme,
	})
	if err != nil {
		slog.Error("failed to create weaviate client", "error", err)
		os.Exit(1)
	}

	wAdapter := vector.NewWeaviateClientAdapter(wClient)
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := vector.EnsureSchema(context.Background(), wAdapter); err == nil {
			slog.Info("weaviate schema ensured")
			break
		}
		slog.Warn("failed to ensure weaviate schema, retrying...", "attempt", i+1, "error", err)
		time.Sleep(retryDelay)
	}
	if err := vector.EnsureSchema(context.Background(), wAdapter); err != nil {
		slog.Error("failed to ensure weaviate schema after retries", "error", err)
		os.Exit(1)
	}

	indexStore := wstore.NewStore(wClient)

	// 5. NSQ Producer
	nsqProducer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		slog.Error("failed to create NSQ producer", "error", err)
		os.Exit(1)
	}

	// NSQ creates topics lazily on publish, but consumers querying lookupd
	// fail 404 until then, so pre-create capture.created over the http api.
	topicURL := fmt.Sprintf("http://%s:4151/topic/create?topic=%s", "nsqd", config.TopicCaptureCreated)
	if host, _, err := net.SplitHostPort(cfg.NSQDHost); err == nil && host != "" {
		topicURL = fmt.Sprintf("http://%s:4151/topic/create?topic=%s", host, config.TopicCaptureCreated)
	}
	go func() {
		time.Sleep(2 * time.Second)
		resp, err := http.Post(topicURL, "application/json", nil)
		if err != nil {
			slog.Warn("failed to pre-create capture.created topic", "error", err, "url", topicURL)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode == 200 {
			slog.Info("capture.created topic pre-created successfully")
		}
	}()

	// 6. Capture Pipeline
	embedder := gemini.NewGenerator(gemini.GeneratorConfig{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDim,
		MaxChars:   cfg.EmbedMaxChars,
		MaxRetries: cfg.EmbedMaxRetries,
		BaseDelay:  time.Duration(cfg.EmbedBaseDelayMS) * time.Millisecond,
	})

	maxUploadBytes := cfg.MaxUploadSizeMB << 20

	captureRepo := capture.NewPostgresRepo(db)
	captureService := capture.NewService(captureRepo, embedder, nsqProducer, maxUploadBytes)
	captureHandler := capture.NewHandler(captureService, maxUploadBytes)

	statsHandler := stats.NewHandler(captureRepo, indexStore)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	http.Handle("POST /capture", middleware.CorrelationID(enableCORS(captureHandler.Create)))
	http.Handle("POST /capture/file", middleware.CorrelationID(enableCORS(captureHandler.Upload)))
	http.Handle("GET /items", middleware.CorrelationID(enableCORS(captureHandler.List)))
	http.Handle("GET /items/{id}", middleware.CorrelationID(enableCORS(captureHandler.Get)))
	http.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	// 7. Index Mirror Worker
	if cfg.EnableIndexWorker {
		indexConsumer := worker.NewIndexConsumer(indexStore, captureRepo)
		consumer, err := nsq.NewConsumer(config.TopicCaptureCreated, "backend", nsq.NewConfig())
		if err != nil {
			slog.Error("failed to create NSQ consumer for capture.created", "error", err)
		} else {
			consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
				return indexConsumer.HandleMessage(m)
			}))
			if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
				slog.Error("failed to connect to NSQLookupd", "error", err)
			} else {
				slog.Info("index mirror consumer connected")
			}
		}
	}

	// 8. Start Server
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	slog.Info("starting server", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
