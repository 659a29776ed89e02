package main

import (
	"context"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/taskhive/flowengine/pkg/cmd"
	"github.com/taskhive/flowengine/pkg/log"
	"github.com/taskhive/flowengine/pkg/notify"
	"github.com/taskhive/flowengine/pkg/otelhelper"
	"github.com/taskhive/flowengine/pkg/workflow"
)

const (
	defaultPort          = 9091
	defaultMaxConcurrent = 10
	defaultMaxRetries    = 3
)

func main() {
	command := &cli.Command{
		Name:                  "flowengine",
		Usage:                 "Run workflow templates as tracked executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (postgres:// or a directory path)",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list (kafka event bus only)",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the task store (in-memory store when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:  "plugins-path",
				Usage: "Path to the directory containing processor plugins",
			},
			&cli.IntFlag{
				Name:    "max-concurrent",
				Usage:   "Maximum number of executions running at once",
				Value:   defaultMaxConcurrent,
				Sources: cli.EnvVars("MAX_CONCURRENT_EXECUTIONS"),
			},
			&cli.IntFlag{
				Name:    "max-retries",
				Usage:   "Per-step retry ceiling",
				Value:   defaultMaxRetries,
				Sources: cli.EnvVars("MAX_STEP_RETRIES"),
			},
			&cli.DurationFlag{
				Name:    "retry-delay",
				Usage:   "Wait before a failed step is retried",
				Value:   time.Second,
				Sources: cli.EnvVars("STEP_RETRY_DELAY"),
			},
			&cli.DurationFlag{
				Name:    "approval-timeout",
				Usage:   "Auto-fail approval steps after this wait (0 disables)",
				Sources: cli.EnvVars("APPROVAL_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup("flowengine", command.String("log-level"))

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing flowengine API")

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "flowengine", command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	taskStore, err := cmd.NewTaskStore(command.String("redis-url"), logger)
	if err != nil {
		return err
	}

	tracer, shutdownTracer, err := otelhelper.NewTracer(ctx, "flowengine")
	if err != nil {
		return err
	}

	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to shut down tracer provider", "error", err)
		}
	}()

	dispatcher := notify.NewBusDispatcher(eventBus, logger)

	registry, err := cmd.NewRegistry(logger, command.String("plugins-path"), taskStore, dispatcher)
	if err != nil {
		return err
	}

	controller := workflow.NewController(persistence, registry, eventBus, dispatcher, logger, tracer, workflow.Config{
		MaxConcurrent:   command.Int("max-concurrent"),
		MaxRetries:      command.Int("max-retries"),
		RetryDelay:      command.Duration("retry-delay"),
		ApprovalTimeout: command.Duration("approval-timeout"),
	})

	maintenance, err := controller.StartMaintenance()
	if err != nil {
		return err
	}

	defer maintenance.Stop()

	api := NewAPI(logger, persistence, registry, controller)

	return api.Start(command.Int("port"))
}
