// Package cli wires the commands, flags and adapters together. Business
// logic lives in the pipeline, cluster and evaluate packages; this package
// only does argument handling, construction and output formatting.
package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/bubbly/pkg/utils/logging"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	var logLevel string

	cmd := &cli.Command{
		Name:  "bubbly",
		Usage: "Online topic clustering for conversation comments",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Log level: debug, info, warn or error",
				Value:       "info",
				Sources:     cli.EnvVars("BUBBLY_LOG_LEVEL"),
				Destination: &logLevel,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger := logging.New(logLevel, nil)
			logging.SetDefault(logger)
			return logging.With(ctx, logger), nil
		},
		Commands: []*cli.Command{
			newCommand(),
			addCommand(),
			ingestCommand(),
			chatCommand(),
			showCommand(),
			evaluateCommand(),
			exportCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
