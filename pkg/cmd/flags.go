package cmd

import (
	cli "github.com/urfave/cli/v3"
)

// EngineFlags are shared by every binary that executes workflows.
func EngineFlags(defaultDatabaseURL string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Persistence URL (file://dir, postgres://..., redis://...)",
			Value:   defaultDatabaseURL,
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "worker-url",
			Usage:   "Base URL of the generation worker",
			Sources: cli.EnvVars("WORKER_URL"),
		},
		&cli.StringFlag{
			Name:    "worker-token",
			Usage:   "Bearer token sent to the generation worker",
			Sources: cli.EnvVars("WORKER_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "output-dir",
			Usage:   "Directory receiving saved and downloaded artifacts",
			Value:   "./output",
			Sources: cli.EnvVars("OUTPUT_DIR"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export run and node spans over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

// EngineConfigFromCommand reads the flags declared by EngineFlags.
func EngineConfigFromCommand(command *cli.Command, serviceName string) EngineConfig {
	return EngineConfig{
		ServiceName:  serviceName,
		DatabaseURL:  command.String("database-url"),
		EventBus:     command.String("event-bus"),
		KafkaBrokers: command.String("kafka-brokers"),
		Tracing:      command.Bool("tracing"),
		Nodes: NodeConfig{
			WorkerURL:   command.String("worker-url"),
			WorkerToken: command.String("worker-token"),
			OutputDir:   command.String("output-dir"),
		},
	}
}
