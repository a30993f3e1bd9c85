package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/deskwise/deskwise/internal/app"
)

var documentsOwner string

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage knowledge documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the owner's documents, newest first",
	RunE:  runDocumentsList,
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and its vectors",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsDelete,
}

func init() {
	documentsCmd.PersistentFlags().StringVar(&documentsOwner, "owner", "", "owner id (required)")
	_ = documentsCmd.MarkPersistentFlagRequired("owner")
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runDocumentsList(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		docs, err := a.Knowledge.ListDocuments(ctx, documentsOwner)
		if err != nil {
			return fmt.Errorf("listing documents: %w", err)
		}
		if len(docs) == 0 {
			fmt.Println("no documents")
			return nil
		}
		for _, d := range docs {
			fmt.Printf("%s  %-20s %-12s %4d chunks  %s\n",
				d.ID, d.Filename, d.Category, d.ChunkCount, d.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	})
}

func runDocumentsDelete(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", args[0], err)
	}

	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		if err := a.Knowledge.Delete(ctx, documentsOwner, id); err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
		fmt.Printf("deleted %s\n", id)
		return nil
	})
}
