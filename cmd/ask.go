package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/deskwise/deskwise/internal/app"
	"github.com/deskwise/deskwise/internal/orchestrator"
)

var (
	askOwner   string
	askSession string
	askReset   bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askOwner, "owner", "", "owner id (required)")
	askCmd.Flags().StringVar(&askSession, "session", "", "session id to continue (defaults to a new session)")
	askCmd.Flags().BoolVar(&askReset, "reset", false, "clear the session's message log before asking")
	_ = askCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	var sessionID uuid.UUID
	if askSession != "" {
		var err error
		sessionID, err = uuid.Parse(askSession)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", askSession, err)
		}
	}

	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		turn, err := a.Orchestrator.Run(ctx, orchestrator.Request{
			OwnerID:   askOwner,
			SessionID: sessionID,
			Message:   strings.Join(args, " "),
			Reset:     askReset,
		})
		if err != nil {
			return fmt.Errorf("running turn: %w", err)
		}

		fmt.Println(turn.Answer)
		if len(turn.Citations) > 0 {
			fmt.Println()
			fmt.Println("Sources:")
			for _, c := range turn.Citations {
				fmt.Printf("  [%s] %s\n", c.ChunkID, c.Snippet)
			}
		}
		fmt.Printf("\nsession: %s\n", turn.SessionID)
		return nil
	})
}
