package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/bubbly/pkg/model"
)

func showCommand() *cli.Command {
	var (
		cfg            config
		conversationID model.ConversationID
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "conversation-id",
			Aliases:     []string{"id"},
			Usage:       "Conversation to show",
			Sources:     cli.EnvVars("BUBBLY_CONVERSATION_ID"),
			Destination: (*string)(&conversationID),
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Show a conversation's bubbles",
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

			w := c.Root().Writer
			fmt.Fprintf(w, "%s: %d comments, %d bubbles\n",
				state.Conversation.Title, len(state.Comments), len(state.Bubbles))
			printState(w, state)
			return nil
		},
	}
}

func printState(w io.Writer, state *model.ConversationState) {
	layout := state.Layout()
	for _, bubble := range state.SortedBubbles() {
		version, ok := state.Versions[bubble.LatestVersionID]
		if !ok {
			continue
		}

		status := ""
		if !bubble.Active {
			status = " (inactive)"
		}
		pos := layout[version.ID]
		fmt.Fprintf(w, "[lane %d]%s %s (%d comments, confidence %.2f, t=%.0f)\n",
			bubble.Lane, status, version.Label, version.Size(), version.Confidence, pos.T)
		if version.Essence != "" {
			fmt.Fprintf(w, "    %s\n", version.Essence)
		}
	}
}
