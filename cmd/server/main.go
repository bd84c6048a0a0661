package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	"github.com/tabmarket/backend/internal/config"
	"github.com/tabmarket/backend/internal/database"
	"github.com/tabmarket/backend/internal/events"
	"github.com/tabmarket/backend/internal/handlers"
	"github.com/tabmarket/backend/internal/market"
	mW "github.com/tabmarket/backend/internal/middleware"
	"github.com/tabmarket/backend/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, closers := setupBackends(ctx, cfg)
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Printf("Close failed: %v", err)
			}
		}
	}()

	m := market.New(opts...)
	if err := m.Load(ctx); err != nil {
		log.Fatalf("Failed to restore marketplace: %v", err)
	}

	go m.RunSweeper(ctx, cfg.Market.SweepInterval)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(cfg, m),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}

// setupBackends builds the journal and publisher options for the configured
// drivers and returns what must be closed on exit.
func setupBackends(ctx context.Context, cfg *config.Config) ([]market.Option, []io.Closer) {
	var (
		opts    []market.Option
		closers []io.Closer
	)

	if cfg.Storage.Driver == config.StoragePostgres {
		db, err := database.InitDB(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		closers = append(closers, db)

		journal := postgres.NewJournal(db)
		if err := journal.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate journal: %v", err)
		}
		opts = append(opts, market.WithJournal(journal))
	} else {
		log.Println("[MARKET] Using in-memory storage, state is lost on restart")
	}

	switch cfg.Events.Driver {
	case config.EventsRedis:
		redisClient, err := database.InitRedis(ctx, cfg.Redis)
		if err != nil {
			log.Printf("Redis connection failed, continuing without purchase events: %v", err)
			break
		}
		closers = append(closers, redisClient)
		opts = append(opts, market.WithPublisher(events.NewRedisPublisher(redisClient, cfg.Redis.Queue)))
	case config.EventsKafka:
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, publisher)
		opts = append(opts, market.WithPublisher(publisher))
		log.Printf("[EVENTS] Publishing purchases to Kafka topic %s", cfg.Kafka.Topic)
	}

	return opts, closers
}

func newRouter(cfg *config.Config, m *market.Marketplace) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", handlers.NewMarketHandler(m).Routes)

	return r
}
