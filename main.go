package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/phidinhthang/tiny-chat/auth"
	"github.com/phidinhthang/tiny-chat/broker"
	"github.com/phidinhthang/tiny-chat/config"
	"github.com/phidinhthang/tiny-chat/hub"
	"github.com/phidinhthang/tiny-chat/membership"
	"github.com/phidinhthang/tiny-chat/metrics"
	"github.com/phidinhthang/tiny-chat/presence"
	"github.com/phidinhthang/tiny-chat/server"
	"github.com/phidinhthang/tiny-chat/services"
	"github.com/phidinhthang/tiny-chat/websocket"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// .env is optional; real deployments set env vars directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Skipping .env file: %v", err)
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	if err := config.Initialize(env); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	cfg := config.Get()

	redisClient, err := services.NewRedisClient(
		cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, cfg.Redis.PoolTimeout,
	)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	presenceRepo := presence.NewRedisRepository(redisClient)
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.RevocationListKey, redisClient)

	// --- Membership Resolver Initialization ---
	var resolver membership.Resolver
	log.Printf("Initializing membership resolver of type: %s", cfg.Membership.Type)
	switch strings.ToLower(cfg.Membership.Type) {
	case "redis":
		resolver = membership.NewRedisResolver(redisClient)
	case "sqlite":
		sqliteResolver, err := membership.NewSQLiteResolver(cfg.Membership.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open sqlite membership store: %v", err)
		}
		defer sqliteResolver.Close()
		resolver = sqliteResolver
	default:
		// Caught by config validation; checked again as a safeguard.
		log.Fatalf("Invalid membership type specified: %s", cfg.Membership.Type)
	}
	// --- End of Membership Resolver Initialization ---

	chatHub := hub.New(verifier, resolver, presenceRepo)
	go chatHub.Run()

	// --- Optional Broker Initialization ---
	if cfg.Broker.Enabled {
		var eventBroker broker.MessageBroker
		log.Printf("Initializing message broker of type: %s", cfg.Broker.Type)
		switch strings.ToLower(cfg.Broker.Type) {
		case "redis":
			eventBroker = broker.NewRedisBroker(redisClient)
		case "kafka":
			eventBroker, err = broker.NewKafkaBroker(cfg.Broker.Kafka.Brokers, cfg.Broker.Kafka.GroupID)
			if err != nil {
				log.Fatalf("Failed to create Kafka broker: %v", err)
			}
		default:
			log.Fatalf("Invalid broker type specified: %s", cfg.Broker.Type)
		}
		defer eventBroker.Close()

		go func() {
			if err := broker.Pump(ctx, eventBroker, cfg.Broker.Topic, chatHub); err != nil && err != context.Canceled {
				log.Printf("Broker pump stopped: %v", err)
			}
		}()
	}
	// --- End of Broker Initialization ---

	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	wsHandler := websocket.NewHandler(chatHub, &cfg.WebSocket)
	addr := ":" + strconv.Itoa(cfg.Server.Port)
	srv := server.New(
		addr, chatHub, wsHandler.HandleWebSocket,
		time.Duration(cfg.Server.ReadTimeout)*time.Second,
		time.Duration(cfg.Server.WriteTimeout)*time.Second,
	)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()
	log.Println("tiny-chat realtime server started on " + addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	if err := chatHub.Shutdown(5 * time.Second); err != nil {
		log.Printf("Hub shutdown error: %v", err)
	}
}
