package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/bubbly/pkg/model"
	"github.com/m-mizutani/bubbly/pkg/pipeline"
	"github.com/m-mizutani/bubbly/pkg/repository"
	"github.com/m-mizutani/bubbly/pkg/utils/logging"
)

func addCommand() *cli.Command {
	var (
		cfg            config
		conversationID model.ConversationID
		text           string
		authorID       string
		authorName     string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "conversation-id",
			Aliases:     []string{"id"},
			Usage:       "Conversation to add the comment to",
			Sources:     cli.EnvVars("BUBBLY_CONVERSATION_ID"),
			Destination: (*string)(&conversationID),
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "text",
			Usage:       "Comment text",
			Required:    true,
			Destination: &text,
		},
		&cli.StringFlag{
			Name:        "author-id",
			Usage:       "Author identifier",
			Destination: &authorID,
		},
		&cli.StringFlag{
			Name:        "author-name",
			Usage:       "Author display name",
			Destination: &authorName,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, pipelineFlags(&cfg)...)

	return &cli.Command{
		Name:  "add",
		Usage: "Add a comment and cluster it",
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

			state, err := repo.GetState(ctx, conversationID)
			if err != nil {
				return err
			}

			comment := &model.Comment{
				ID:             model.NewCommentID(),
				ConversationID: conversationID,
				Author:         model.Author{ID: authorID, DisplayName: authorName},
				Text:           text,
				CreatedAt:      time.Now(),
			}

			run, err := processComment(ctx, repo, pipe, state, comment)
			if err != nil {
				return err
			}

			version := state.Versions[comment.AssignedVersionID]
			if run.Decision.CreatedNewBubble {
				fmt.Fprintf(c.Root().Writer, "Comment %s spawned bubble %s: %s\n",
					comment.ID, comment.AssignedBubbleID, version.Label)
			} else {
				fmt.Fprintf(c.Root().Writer, "Comment %s joined bubble %s (similarity %.3f): %s\n",
					comment.ID, comment.AssignedBubbleID, run.Decision.Similarity, version.Label)
			}
			return nil
		},
	}
}

// processComment persists the comment, runs the pipeline against the state
// and persists everything the decision produced. On pipeline failure the
// tentative comment is removed again.
func processComment(ctx context.Context, repo repository.Repository, pipe *pipeline.Pipeline, state *model.ConversationState, comment *model.Comment) (*model.PipelineRun, error) {
	if err := repo.PutComment(ctx, comment); err != nil {
		return nil, goerr.Wrap(err, "failed to put comment", goerr.V("comment_id", comment.ID))
	}
	state.Comments[comment.ID] = comment

	edge, run, err := pipe.ProcessComment(ctx, comment, state)
	if err != nil {
		if delErr := repo.DeleteComment(ctx, comment.ConversationID, comment.ID); delErr != nil {
			logging.From(ctx).Warn("failed to roll back comment",
				"comment_id", comment.ID, "error", delErr)
		}
		delete(state.Comments, comment.ID)
		return nil, err
	}

	bubble := state.Bubbles[comment.AssignedBubbleID]
	version := state.Versions[comment.AssignedVersionID]

	if err := repo.PutBubble(ctx, bubble); err != nil {
		return nil, goerr.Wrap(err, "failed to put bubble", goerr.V("bubble_id", bubble.ID))
	}
	if err := repo.PutVersion(ctx, version); err != nil {
		return nil, goerr.Wrap(err, "failed to put bubble version", goerr.V("version_id", version.ID))
	}
	if edge != nil {
		if err := repo.PutEdge(ctx, edge); err != nil {
			return nil, goerr.Wrap(err, "failed to put edge", goerr.V("edge_id", edge.ID))
		}
		state.Edges = append(state.Edges, edge)
	}
	if err := repo.PutRun(ctx, run); err != nil {
		return nil, goerr.Wrap(err, "failed to put run", goerr.V("run_id", run.ID))
	}
	state.Runs = append(state.Runs, run)

	// Comment again: the assignment fields were set by the clusterer.
	if err := repo.PutComment(ctx, comment); err != nil {
		return nil, goerr.Wrap(err, "failed to update comment", goerr.V("comment_id", comment.ID))
	}
	if err := repo.SetNextLane(ctx, comment.ConversationID, state.NextLane); err != nil {
		return nil, goerr.Wrap(err, "failed to update lane counter")
	}

	return run, nil
}
