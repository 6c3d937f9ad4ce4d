package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chatdesk-dev/chatdesk/internal/cli/client"
)

// NewDocsCmd creates the docs command group
func NewDocsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage knowledge base documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return apiError(runDocsList(cmd.Context(), app))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload documents for indexing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return apiError(runDocsUpload(cmd.Context(), app, args))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <document-id>",
		Aliases: []string{"delete"},
		Short:   "Delete a document",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.requireUser(); err != nil {
				return apiError(err)
			}
			if err := app.Documents.DeleteDocument(cmd.Context(), args[0]); err != nil {
				return apiError(err)
			}
			fmt.Fprintf(app.Out, "✓ Deleted document %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func runDocsList(ctx context.Context, app *App) error {
	if _, err := app.requireUser(); err != nil {
		return err
	}

	docs, err := app.Documents.ListDocuments(ctx)
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		fmt.Fprintln(app.Out, "No documents found.")
		fmt.Fprintln(app.Out, "\nUpload one with: chatdesk docs upload <file>")
		return nil
	}

	w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSIZE\tSTATUS\tUPLOADED")
	fmt.Fprintln(w, "──\t────\t────\t──────\t────────")
	for _, doc := range docs {
		status := doc.Status
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", doc.ID, doc.Name, formatSize(doc.Size), status, formatTime(doc.CreatedAt))
	}
	return w.Flush()
}

func runDocsUpload(ctx context.Context, app *App, paths []string) error {
	if _, err := app.requireUser(); err != nil {
		return err
	}

	files := make([]client.UploadFile, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		files = append(files, client.UploadFile{Name: path, Content: f})
	}

	fmt.Fprintf(app.Out, "Uploading %d file(s)...\n", len(files))

	resp, err := app.Documents.UploadDocuments(ctx, files...)
	if err != nil {
		return err
	}

	for _, doc := range resp.Documents {
		fmt.Fprintf(app.Out, "✓ %s (%s)\n", doc.Name, doc.ID)
	}
	if resp.Message != "" {
		fmt.Fprintln(app.Out, resp.Message)
	}
	return nil
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
