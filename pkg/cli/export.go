package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/bubbly/pkg/adapter"
	"github.com/m-mizutani/bubbly/pkg/model"
)

func exportCommand() *cli.Command {
	var (
		cfg            config
		conversationID model.ConversationID
		dataset        string
		table          string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "conversation-id",
			Aliases:     []string{"id"},
			Usage:       "Conversation whose runs are exported",
			Sources:     cli.EnvVars("BUBBLY_CONVERSATION_ID"),
			Destination: (*string)(&conversationID),
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "dataset",
			Usage:       "BigQuery dataset ID",
			Sources:     cli.EnvVars("BUBBLY_BQ_DATASET"),
			Destination: &dataset,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "table",
			Usage:       "BigQuery table ID",
			Value:       "pipeline_runs",
			Sources:     cli.EnvVars("BUBBLY_BQ_TABLE"),
			Destination: &table,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "export",
		Usage: "Export pipeline audit records to BigQuery",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			state, err := repo.GetState(ctx, conversationID)
			if err != nil {
				return err
			}
			if len(state.Runs) == 0 {
				fmt.Fprintf(c.Root().Writer, "No runs to export\n")
				return nil
			}

			bq, err := adapter.NewBigQuery(ctx, cfg.project)
			if err != nil {
				return err
			}
			if err := bq.InsertRuns(ctx, dataset, table, state.Runs); err != nil {
				return goerr.Wrap(err, "failed to export runs")
			}

			fmt.Fprintf(c.Root().Writer, "Exported %d runs to %s.%s\n",
				len(state.Runs), dataset, table)
			return nil
		},
	}
}
