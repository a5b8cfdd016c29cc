package cli

import (
	"github.com/spf13/cobra"

	"whiteboard/internal/media"
	"whiteboard/internal/server"
)

func newServeCmd(app *App) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Block Store and media API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, release, err := openStore(ctx, app)
			if err != nil {
				return err
			}
			defer release()

			up, err := media.NewDirUploader(app.cfg.MediaDir, app.cfg.MediaBaseURL, app.log)
			if err != nil {
				return err
			}
			addr := app.cfg.ListenAddr
			if cmd.Flags().Changed("listen") {
				addr = listen
			}
			e := server.New(server.Options{
				Store:    store,
				Uploader: up,
				MediaDir: app.cfg.MediaDir,
				Logger:   app.log,
			})
			return server.Serve(ctx, e, addr, app.log)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides listen_addr)")
	return cmd
}
