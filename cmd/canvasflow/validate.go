package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/canvasflow/canvasflow/pkg/cmd"
	"github.com/canvasflow/canvasflow/pkg/log"
	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check a workflow document and list every violation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Workflow document (.json, .yaml or .yml)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("canvasflow")

			wf, err := readWorkflow(command.String("file"))
			if err != nil {
				return err
			}

			// Schemas only; no node is executed.
			reg, err := cmd.NewRegistry(logger, cmd.NodeConfig{})
			if err != nil {
				return err
			}

			out := command.Root().Writer

			graph, err := workflow.NewValidator(nil, reg).Validate(wf)
			if err != nil {
				var verr *workflow.ValidationError
				if !errors.As(err, &verr) {
					return err
				}

				for _, v := range verr.Violations {
					fmt.Fprintf(out, "%s\t%s\n", v.Code, v.Message)
				}

				return cli.Exit(fmt.Sprintf("workflow %s is invalid: %d violation(s)", wf.ID, len(verr.Violations)), 1)
			}

			fmt.Fprintf(out, "workflow %s is valid\norder: %s\n", wf.ID, strings.Join(graph.Order(), " -> "))

			return nil
		},
	}
}

func readWorkflow(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow document: %w", err)
	}

	return models.DecodeWorkflow(data, models.FormatFromPath(path))
}
