package cli

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"whiteboard/internal/blockstore"
)

func newBlocksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Inspect and repair a board's stored blocks",
	}
	cmd.AddCommand(newBlocksListCmd(app))
	cmd.AddCommand(newBlocksDeleteCmd(app))
	return cmd
}

func newBlocksListCmd(app *App) *cobra.Command {
	var pretty bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the board's blocks as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, release, err := openStore(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer release()

			blocks, err := store.List(cmd.Context(), app.cfg.Board)
			if err != nil {
				return err
			}
			if blocks == nil {
				blocks = []blockstore.Block{}
			}
			out := map[string]any{"blocks": blocks}
			var b []byte
			if pretty {
				b, err = sonic.ConfigStd.MarshalIndent(out, "", "  ")
			} else {
				b, err = sonic.ConfigStd.Marshal(out)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON output")
	return cmd
}

func newBlocksDeleteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, release, err := openStore(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer release()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		},
	}
	return cmd
}
