package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/bubbly/pkg/model"
	"github.com/m-mizutani/bubbly/pkg/pipeline"
	"github.com/m-mizutani/bubbly/pkg/policy"
	"github.com/m-mizutani/bubbly/pkg/utils/logging"
)

// ingestRecord is one line of the JSONL input.
type ingestRecord struct {
	Text       string    `json:"text"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	ReplyToID  string    `json:"reply_to_comment_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func ingestCommand() *cli.Command {
	var (
		cfg            config
		conversationID model.ConversationID
		inputPath      string
		policyDir      string
		preEmbed       bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "conversation-id",
			Aliases:     []string{"id"},
			Usage:       "Conversation to ingest into",
			Sources:     cli.EnvVars("BUBBLY_CONVERSATION_ID"),
			Destination: (*string)(&conversationID),
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to JSONL file, one comment per line",
			Required:    true,
			Destination: &inputPath,
		},
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "Directory of Rego policies gating ingestion",
			Sources:     cli.EnvVars("BUBBLY_POLICY_DIR"),
			Destination: &policyDir,
		},
		&cli.BoolFlag{
			Name:        "pre-embed",
			Usage:       "Embed all comments in one batch before clustering",
			Destination: &preEmbed,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, pipelineFlags(&cfg)...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Ingest a JSONL file of comments into a conversation",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			pipe, err := cfg.newPipeline(ctx)
			if err != nil {
				return err
			}

			gate := policy.NewAllowAll()
			if policyDir != "" {
				gate, err = policy.Load(ctx, policyDir)
				if err != nil {
					return err
				}
			}

			comments, err := readComments(inputPath, conversationID)
			if err != nil {
				return err
			}

			state, err := repo.GetState(ctx, conversationID)
			if err != nil {
				return err
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
				spinner.WithWriter(os.Stderr))
			sp.Suffix = fmt.Sprintf(" ingesting %d comments...", len(comments))
			sp.Start()
			defer sp.Stop()

			if preEmbed {
				if err := embedBatch(ctx, pipe, comments); err != nil {
					return err
				}
			}

			logger := logging.From(ctx)
			processed := 0
			skipped := 0
			for _, comment := range comments {
				decision, err := gate.Evaluate(ctx, comment)
				if err != nil {
					return err
				}
				if !decision.Allow {
					logger.Info("comment denied by policy",
						"comment_id", comment.ID, "reason", decision.Reason)
					skipped++
					continue
				}

				if _, err := processComment(ctx, repo, pipe, state, comment); err != nil {
					return goerr.Wrap(err, "failed to process comment",
						goerr.V("comment_id", comment.ID))
				}
				processed++
			}

			sp.Stop()
			fmt.Fprintf(c.Root().Writer, "Ingested %d comments (%d denied) into %d bubbles\n",
				processed, skipped, len(state.Bubbles))
			return nil
		},
	}
}

func readComments(path string, conversationID model.ConversationID) ([]*model.Comment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open input file", goerr.V("path", path))
	}
	defer f.Close()

	var comments []*model.Comment
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec ingestRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, goerr.Wrap(err, "failed to parse input line", goerr.V("line", line))
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		comments = append(comments, &model.Comment{
			ID:             model.NewCommentID(),
			ConversationID: conversationID,
			Author:         model.Author{ID: rec.AuthorID, DisplayName: rec.AuthorName},
			Text:           rec.Text,
			ReplyToID:      model.CommentID(rec.ReplyToID),
			CreatedAt:      createdAt,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read input file", goerr.V("path", path))
	}
	return comments, nil
}

// embedBatch computes all embeddings with one provider call so live backends
// are hit once instead of per comment. Clustering still runs sequentially.
func embedBatch(ctx context.Context, pipe *pipeline.Pipeline, comments []*model.Comment) error {
	texts := make([]string, 0, len(comments))
	for _, c := range comments {
		texts = append(texts, c.Text)
	}

	embeddings, err := pipe.Embedder().EmbedBatch(ctx, texts)
	if err != nil {
		return goerr.Wrap(err, "failed to embed batch")
	}
	for i, emb := range embeddings {
		comments[i].Embedding = emb
	}
	return nil
}
