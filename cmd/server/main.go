package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/phishsim-monitor/internal/api"
	"github.com/ignite/phishsim-monitor/internal/config"
	"github.com/ignite/phishsim-monitor/internal/gophish"
	"github.com/ignite/phishsim-monitor/internal/repository/postgres"
	"github.com/ignite/phishsim-monitor/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("[main] Failed to load config: %v", err)
	}

	client := gophish.NewClient(cfg.Phishing)
	handlers := api.NewHandlers(client, cfg.Polling.Interval())

	// Preference/snapshot store (optional)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("[main] Redis unavailable, continuing without store: %v", err)
		} else {
			handlers.SetStore(ctx, storage.New(rdb))
			log.Printf("[main] Redis store connected at %s", cfg.Redis.Addr)
		}
		cancel()
	}

	// Stats history (optional)
	if cfg.Database.Enabled && cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Printf("[main] Postgres unavailable, continuing without stats history: %v", err)
		} else {
			db.SetMaxOpenConns(10)
			db.SetConnMaxLifetime(5 * time.Minute)
			handlers.SetHistory(postgres.NewStatsHistory(db))
			log.Println("[main] Stats history enabled")
		}
	}

	router := api.SetupRoutes(handlers)
	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[main] Listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("[main] Shutting down...")
	handlers.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[main] Shutdown error: %v", err)
	}
	log.Println("[main] Stopped")
}
