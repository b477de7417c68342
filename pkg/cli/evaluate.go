package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/bubbly/pkg/adapter"
	"github.com/m-mizutani/bubbly/pkg/evaluate"
	"github.com/m-mizutani/bubbly/pkg/model"
)

func evaluateCommand() *cli.Command {
	var (
		cfg            config
		conversationID model.ConversationID
		outputPath     string
		bucket         string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "conversation-id",
			Aliases:     []string{"id"},
			Usage:       "Conversation to evaluate",
			Sources:     cli.EnvVars("BUBBLY_CONVERSATION_ID"),
			Destination: (*string)(&conversationID),
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Write the JSON report to this file instead of stdout",
			Destination: &outputPath,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Also archive the report to this Cloud Storage bucket",
			Sources:     cli.EnvVars("BUBBLY_REPORT_BUCKET"),
			Destination: &bucket,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, pipelineFlags(&cfg)...)

	return &cli.Command{
		Name:  "evaluate",
		Usage: "Evaluate a conversation's clustering quality",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			pcfg, err := cfg.pipelineConfig()
			if err != nil {
				return err
			}

			state, err := repo.GetState(ctx, conversationID)
			if err != nil {
				return err
			}

			report := evaluate.New(pcfg.AssignThreshold).Evaluate(state)

			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to encode report")
			}

			if outputPath != "" {
				if err := os.WriteFile(outputPath, data, 0644); err != nil {
					return goerr.Wrap(err, "failed to write report", goerr.V("path", outputPath))
				}
			} else {
				fmt.Fprintf(c.Root().Writer, "%s\n", data)
			}

			if bucket != "" {
				if err := archiveReport(ctx, bucket, conversationID, data); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// archiveReport stores the report under reports/<conversation>/<timestamp>.json.
func archiveReport(ctx context.Context, bucket string, id model.ConversationID, data []byte) error {
	storage, err := adapter.NewStorage(ctx, bucket)
	if err != nil {
		return goerr.Wrap(err, "failed to create storage")
	}

	key := fmt.Sprintf("reports/%s/%s.json", id, time.Now().UTC().Format("20060102T150405Z"))
	w, err := storage.Put(ctx, key)
	if err != nil {
		return goerr.Wrap(err, "failed to open report object", goerr.V("key", key))
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write report object", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to close report object", goerr.V("key", key))
	}
	return nil
}
