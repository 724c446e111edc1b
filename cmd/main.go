package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fleetmetrics/internal/alerts"
	"fleetmetrics/internal/api"
	"fleetmetrics/internal/cache"
	"fleetmetrics/internal/config"
	"fleetmetrics/internal/db"
	"fleetmetrics/internal/kafka"
	"fleetmetrics/internal/logging"
	"fleetmetrics/internal/remote"
	"fleetmetrics/internal/stream"
	"fleetmetrics/internal/utils"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Connect to database
	var dbConn *db.DB
	err = utils.Retry(logger, 5, cfg.Cache.RetryDelay, func() error {
		var connErr error
		dbConn, connErr = db.New(cfg.DB.DSN)
		return connErr
	})
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()

	// Fetch-cache coordinator over the fleet data service
	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout, logger)
	coord := cache.New(client.Fetch, logger, cache.Options{
		Freshness:  cfg.Cache.Freshness,
		RetryMax:   cfg.Cache.RetryMax,
		RetryDelay: cfg.Cache.RetryDelay,
	})
	defer coord.Close()

	hub := stream.NewHub(coord, logger)
	rules := alerts.NewManager(dbConn, logger)

	// Kafka consumer invalidating the cache on fleet refresh events
	ctx, cancel := context.WithCancel(context.Background())
	consumer := kafka.NewConsumer(cfg.Kafka.Broker, cfg.Kafka.Topic, cfg.Kafka.GroupID, coord, logger)
	go consumer.Start(ctx)
	logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)

	// Start API server
	handler := api.NewHandler(dbConn, rules, coord, hub, logger, cfg.Sync.Cooldown)
	router := api.NewRouter(logger, cfg, handler)
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := router.Run(cfg.API.Port); err != nil {
			logger.Errorf("API server failed: %v", err)
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Infof("Shutting down...")
	cancel()
	if err := consumer.Close(); err != nil {
		logger.Errorf("Kafka close failed: %v", err)
	}
	logger.Infof("Service stopped")
}
