// Package main provides the canvasflow command line: validate and run workflow documents.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"
)

func newApp(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:                  "canvasflow",
		Usage:                 "Validate and execute content-generation workflows",
		EnableShellCompletion: true,
		Writer:                stdout,
		Commands: []*cli.Command{
			validateCommand(),
			runCommand(),
		},
	}
}

func main() {
	err := newApp(os.Stdout).Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
