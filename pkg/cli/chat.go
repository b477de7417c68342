package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/bubbly/pkg/evaluate"
	"github.com/m-mizutani/bubbly/pkg/model"
	"github.com/m-mizutani/bubbly/pkg/repository"
)

func chatCommand() *cli.Command {
	var (
		cfg   config
		title string
		body  string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "title",
			Aliases:     []string{"t"},
			Usage:       "Conversation title",
			Value:       "Interactive session",
			Destination: &title,
		},
		&cli.StringFlag{
			Name:        "body",
			Aliases:     []string{"b"},
			Usage:       "Conversation root content",
			Destination: &body,
		},
	}
	flags = append(flags, pipelineFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive clustering session against an in-memory store",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			pipe, err := cfg.newPipeline(ctx)
			if err != nil {
				return err
			}

			repo := repository.NewMemory()
			conv := &model.Conversation{
				ID:        model.NewConversationID(),
				Title:     title,
				Body:      body,
				CreatedAt: time.Now(),
			}
			if err := repo.PutConversation(ctx, conv); err != nil {
				return err
			}
			state, err := repo.GetState(ctx, conv.ID)
			if err != nil {
				return err
			}

			rl, err := readline.New("> ")
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintf(w, "Type comments to cluster them. Commands: /show, /report, /exit\n")

			for {
				line, err := rl.Readline()
				if err == readline.ErrInterrupt || err == io.EOF {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read line")
				}
				if line == "" {
					continue
				}

				switch line {
				case "/exit":
					return nil
				case "/show":
					printState(w, state)
					continue
				case "/report":
					report := evaluate.New(pipe.Threshold()).Evaluate(state.Snapshot())
					for _, rec := range report.Recommendations {
						fmt.Fprintf(w, "- %s\n", rec)
					}
					if len(report.Recommendations) == 0 {
						fmt.Fprintf(w, "No recommendations.\n")
					}
					continue
				}

				comment := &model.Comment{
					ID:             model.NewCommentID(),
					ConversationID: conv.ID,
					Text:           line,
					CreatedAt:      time.Now(),
				}
				run, err := processComment(ctx, repo, pipe, state, comment)
				if err != nil {
					fmt.Fprintf(w, "error: %s\n", err)
					continue
				}

				version := state.Versions[comment.AssignedVersionID]
				bubble := state.Bubbles[comment.AssignedBubbleID]
				if run.Decision.CreatedNewBubble {
					fmt.Fprintf(w, "new bubble [lane %d] %s\n", bubble.Lane, version.Label)
				} else {
					fmt.Fprintf(w, "joined [lane %d] %s (similarity %.3f, %d comments)\n",
						bubble.Lane, version.Label, run.Decision.Similarity, version.Size())
				}
			}

			return nil
		},
	}
}
