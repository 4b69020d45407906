package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/canvasflow/canvasflow/pkg/cmd"
	"github.com/canvasflow/canvasflow/pkg/log"
	"github.com/canvasflow/canvasflow/pkg/models"
	cli "github.com/urfave/cli/v3"
)

const closeTimeout = 30 * time.Second

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:     "schedule",
			Aliases:  []string{"s"},
			Usage:    "Schedule as <workflow-id>=<cron expression>, repeatable",
			Sources:  cli.EnvVars("SCHEDULES"),
			Required: true,
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Usage:   "Maximum number of nodes executing at once (0 selects the default)",
			Sources: cli.EnvVars("CONCURRENCY_LIMIT"),
		},
		&cli.DurationFlag{
			Name:    "node-timeout",
			Usage:   "Timeout of one node attempt (0 selects the default)",
			Sources: cli.EnvVars("NODE_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "max-retries",
			Usage:   "Attempts per node for retryable failures (0 selects the default)",
			Sources: cli.EnvVars("MAX_RETRIES"),
		},
	}

	return &cli.Command{
		Name:                  "canvasflow-scheduler",
		Usage:                 "Run stored workflows on cron schedules",
		EnableShellCompletion: true,
		Flags:                 append(flags, cmd.EngineFlags("file://./canvasflow-data")...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("scheduler")

			engine, err := cmd.NewEngine(ctx, logger, cmd.EngineConfigFromCommand(command, "canvasflow-scheduler"))
			if err != nil {
				return err
			}

			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
				defer cancel()

				if err := engine.Close(closeCtx); err != nil {
					logger.ErrorContext(ctx, "Failed to close engine", "error", err)
				}
			}()

			scheduler, err := NewScheduler(logger, engine, models.ExecutionRequest{
				ConcurrencyLimit: command.Int("concurrency"),
				PerNodeTimeoutMs: command.Duration("node-timeout").Milliseconds(),
				MaxRetries:       command.Int("max-retries"),
			}, command.StringSlice("schedule"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return scheduler.Run(ctx)
		},
	}
}
