package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/deskwise/deskwise/internal/app"
	"github.com/deskwise/deskwise/internal/knowledge"
)

var (
	uploadOwner    string
	uploadCategory string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document into the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadOwner, "owner", "", "owner id (required)")
	uploadCmd.Flags().StringVar(&uploadCategory, "category", "", "knowledge category (required)")
	_ = uploadCmd.MarkFlagRequired("owner")
	_ = uploadCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied path is the point of the command
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		doc, err := a.Knowledge.Upload(ctx, knowledge.UploadInput{
			OwnerID:  uploadOwner,
			Category: uploadCategory,
			Filename: filepath.Base(path),
			Data:     data,
		})
		if err != nil {
			return fmt.Errorf("uploading %s: %w", path, err)
		}

		fmt.Printf("uploaded %s\n", doc.Filename)
		fmt.Printf("  id:       %s\n", doc.ID)
		fmt.Printf("  category: %s\n", doc.Category)
		fmt.Printf("  chunks:   %d\n", doc.ChunkCount)
		return nil
	})
}
