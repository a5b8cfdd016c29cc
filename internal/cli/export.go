package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"whiteboard/internal/board"
	"whiteboard/internal/tui"
)

func newExportCmd(app *App) *cobra.Command {
	var png, txt string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render the board to an image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if png == "" && txt == "" {
				return errors.New("--png or --txt is required")
			}
			store, release, err := openStore(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer release()

			blocks, err := store.List(cmd.Context(), app.cfg.Board)
			if err != nil {
				return err
			}
			items := make(board.Snapshot, 0, len(blocks))
			for _, b := range blocks {
				it, err := board.ItemFromBlock(b)
				if err != nil {
					app.log.WithField("item", b.ID).Warnf("skipping block, err: %v", err)
					continue
				}
				items = append(items, it)
			}
			for _, out := range []struct {
				file  string
				write func(board.Snapshot, string) error
			}{{png, tui.ExportPNG}, {txt, tui.ExportText}} {
				if out.file == "" {
					continue
				}
				if err := out.write(items, out.file); err != nil {
					return err
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "exported %d items to %s\n", len(items), out.file); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&png, "png", "", "Output PNG file")
	cmd.Flags().StringVar(&txt, "txt", "", "Output text file, drawn as in the terminal")
	return cmd
}
