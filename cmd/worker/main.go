package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/sequence-engine/internal/config"
	"github.com/ignite/sequence-engine/internal/dispatch"
	"github.com/ignite/sequence-engine/internal/mailer"
	"github.com/ignite/sequence-engine/internal/member"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
	"github.com/ignite/sequence-engine/internal/sequence"
	_ "github.com/lib/pq"
)

func main() {
	log.Println("Starting sequence dispatch worker...")

	configPath := "config/config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	store := sequence.NewStore(db)
	directory := member.NewClient(cfg.Members.BaseURL, cfg.Members.APIToken)
	sender := mailer.NewSESSender(cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region)

	dispatcher := dispatch.New(store, directory, sender, dispatch.Config{
		NumWorkers:   cfg.Dispatch.NumWorkers,
		BatchSize:    cfg.Dispatch.BatchSize,
		PollInterval: cfg.Dispatch.PollInterval(),
		MaxAttempts:  cfg.Dispatch.MaxAttempts,
		BackoffBase:  cfg.Dispatch.BackoffBase(),
		LockTimeout:  cfg.Dispatch.LockTimeout(),
	})
	dispatcher.Start()
	log.Println("Dispatcher started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	dispatcher.Stop()
	log.Println("Worker stopped")
}
