package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/sequence-engine/internal/api"
	"github.com/ignite/sequence-engine/internal/config"
	"github.com/ignite/sequence-engine/internal/dispatch"
	"github.com/ignite/sequence-engine/internal/mailer"
	"github.com/ignite/sequence-engine/internal/member"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
	"github.com/ignite/sequence-engine/internal/sequence"
	"github.com/ignite/sequence-engine/internal/trigger"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := "config/config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	// Postgres
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	store := sequence.NewStore(db)

	// Redis trigger queue
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to ping redis: %v", err)
	}
	queueKey := cfg.Redis.QueueKey
	if queueKey == "" {
		queueKey = trigger.DefaultQueueKey
	}
	queue := trigger.NewQueue(redisClient, queueKey)

	// Trigger worker consumes queued webhook deliveries
	triggerWorker := trigger.NewWorker(queue, store)
	triggerWorker.Start()
	defer triggerWorker.Stop()

	// Embedded dispatcher (optional; run cmd/worker for a dedicated process)
	var dispatcher *dispatch.Dispatcher
	if cfg.Dispatch.Enabled {
		directory := member.NewClient(cfg.Members.BaseURL, cfg.Members.APIToken)
		sender := mailer.NewSESSender(cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region)
		dispatcher = dispatch.New(store, directory, sender, dispatch.Config{
			NumWorkers:   cfg.Dispatch.NumWorkers,
			BatchSize:    cfg.Dispatch.BatchSize,
			PollInterval: cfg.Dispatch.PollInterval(),
			MaxAttempts:  cfg.Dispatch.MaxAttempts,
			BackoffBase:  cfg.Dispatch.BackoffBase(),
			LockTimeout:  cfg.Dispatch.LockTimeout(),
		})
		dispatcher.Start()
		defer dispatcher.Stop()
		log.Println("Embedded dispatcher started")
	}

	handlers := api.NewHandlers(store, queue, cfg.Webhook)
	server := api.NewServer(handlers)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
