package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/thep200/codeql-fetcher/cfg"
	"github.com/thep200/codeql-fetcher/internal/model"
	"github.com/thep200/codeql-fetcher/pkg/db"
	"github.com/thep200/codeql-fetcher/pkg/kafka"
	"github.com/thep200/codeql-fetcher/pkg/log"
)

func main() {
	// Load configuration
	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, _ := log.NewCslLogger()

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup database
	mysql, _ := db.NewMysql(config)
	if !mysql.Configured() {
		logger.Error(ctx, "Mysql is not configured; the catalog consumer cannot start")
		os.Exit(1)
	}

	databaseMd, _ := model.NewDatabase(config, logger, mysql)
	if err := mysql.Migrate(databaseMd); err != nil {
		logger.Error(ctx, "Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Setup consumer
	consumer, err := kafka.NewConsumer(config, logger, config.Kafka.Producer.TopicInstall, config.Kafka.Consumer.GroupID)
	if err != nil {
		logger.Error(ctx, "Failed to create consumer: %v", err)
		os.Exit(1)
	}
	defer consumer.Close()

	consumer.RegisterHandler("db_installed", func(value []byte) error {
		msg := model.InstallMessage{}
		if err := json.Unmarshal(value, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal install message: %w", err)
		}
		return databaseMd.Record(msg)
	})

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info(ctx, "Received signal %v, shutting down", sig)
		cancel()
	}()

	logger.Info(ctx, "Starting catalog consumer")
	if err := consumer.Start(ctx); err != nil {
		logger.Error(ctx, "Consumer stopped with error: %v", err)
		os.Exit(1)
	}
}
