package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/septivank/depin-rewards-worker/internal/config"
	"go.uber.org/fx"
)

func main() {
	// Load .env from the working directory or its parents; in containers
	// the environment usually arrives already set.
	envPaths := []string{".env", "../../.env"}
	if workDir, err := os.Getwd(); err == nil {
		envPaths = append(envPaths,
			filepath.Join(filepath.Dir(workDir), ".env"),
		)
	}

	envLoaded := false
	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err == nil {
				absPath, _ := filepath.Abs(envPath)
				fmt.Printf("Loaded environment from: %s\n", absPath)
				envLoaded = true
				break
			}
		}
	}
	if !envLoaded {
		fmt.Println("No .env file found, using system environment variables (OK for pods/containers)")
	}

	app := fx.New(
		fx.Provide(
			config.Load,
			newLogger,
			ProvideDBPool,
			ProvideMetricRepository,
			ProvideRewardRepository,
			ProvideDetector,
			ProvideValidator,
			ProvideMetricStore,
			ProvideRewardEngine,
			ProvideCounters,
			ProvideMQConnection,
			ProvidePublisher,
			ProvideIngestProcessor,
			ProvideScoringProcessor,
		),
		fx.Invoke(startMetricsServer, startWorker),
	)

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		if startCtx.Err() == context.DeadlineExceeded {
			fmt.Println("application start timed out after 30s; a dependency (database or RabbitMQ) is probably unreachable")
		}
		panic(err)
	}

	// Wait for interrupt signal
	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Println("error stopping app:", err)
	}
}
