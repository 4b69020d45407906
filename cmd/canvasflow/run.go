package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/canvasflow/canvasflow/pkg/cmd"
	"github.com/canvasflow/canvasflow/pkg/log"
	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

const closeTimeout = 30 * time.Second

var errNoWorkflow = errors.New("either --file or --workflow-id is required")

func runCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "Workflow document to import and run",
		},
		&cli.StringFlag{
			Name:    "workflow-id",
			Aliases: []string{"id"},
			Usage:   "Stored workflow to run",
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
		Name:  "run",
		Usage: "Execute a workflow and print its run record",
		Flags: append(flags, cmd.EngineFlags("file://./canvasflow-data")...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("canvasflow")

			if command.String("file") == "" && command.String("workflow-id") == "" {
				return errNoWorkflow
			}

			engine, err := cmd.NewEngine(ctx, logger, cmd.EngineConfigFromCommand(command, "canvasflow"))
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

			workflowID := command.String("workflow-id")

			if path := command.String("file"); path != "" {
				wf, err := readWorkflow(path)
				if err != nil {
					return err
				}

				imported, err := importWorkflow(ctx, engine.Workflows, wf)
				if err != nil {
					return err
				}

				workflowID = imported.ID
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			record, err := engine.Runs.Execute(ctx, models.ExecutionRequest{
				WorkflowID:       workflowID,
				ConcurrencyLimit: command.Int("concurrency"),
				PerNodeTimeoutMs: command.Duration("node-timeout").Milliseconds(),
				MaxRetries:       command.Int("max-retries"),
			})
			if record != nil {
				encoder := json.NewEncoder(command.Root().Writer)
				encoder.SetIndent("", "  ")

				if encErr := encoder.Encode(record); encErr != nil {
					return encErr
				}
			}

			if err != nil {
				return err
			}

			switch record.Outcome {
			case models.RunOutcomeFailed:
				return cli.Exit("run failed", 1)
			case models.RunOutcomePartial:
				return cli.Exit("run partially succeeded", 2)
			default:
				return nil
			}
		},
	}
}

// importWorkflow stores the document, replacing a stored workflow with the same id.
func importWorkflow(ctx context.Context, workflows *services.Workflows, wf *models.Workflow) (*models.Workflow, error) {
	created, err := workflows.Create(ctx, wf)
	if err == nil {
		return created, nil
	}

	if !errors.Is(err, services.ErrWorkflowExists) {
		return nil, err
	}

	return workflows.Update(ctx, wf.ID, wf)
}
