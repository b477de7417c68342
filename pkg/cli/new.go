package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/bubbly/pkg/model"
)

func newCommand() *cli.Command {
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
			Required:    true,
			Destination: &title,
		},
		&cli.StringFlag{
			Name:        "body",
			Aliases:     []string{"b"},
			Usage:       "Conversation root content",
			Destination: &body,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "new",
		Usage: "Create a new conversation",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			conv := &model.Conversation{
				ID:        model.NewConversationID(),
				Title:     title,
				Body:      body,
				CreatedAt: time.Now(),
			}
			if err := repo.PutConversation(ctx, conv); err != nil {
				return goerr.Wrap(err, "failed to create conversation")
			}

			fmt.Fprintf(c.Root().Writer, "Conversation created: %s\n", conv.ID)
			return nil
		},
	}
}
