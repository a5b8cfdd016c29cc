package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"whiteboard/internal/blockstore"
	"whiteboard/internal/board"
	"whiteboard/internal/tui"
)

const shutdownTimeout = 10 * time.Second

func newSyncer(app *App, store blockstore.Store) *board.Syncer {
	return board.NewSyncer(store, board.SyncOptions{
		Workers:  app.cfg.SyncWorkers,
		Debounce: app.cfg.Debounce,
		Logger:   app.log,
	})
}

func runTUI(cmd *cobra.Command, app *App) error {
	if err := app.logToFile(); err != nil {
		return err
	}
	ctx := cmd.Context()
	store, release, err := openStore(ctx, app)
	if err != nil {
		return err
	}
	defer release()

	up, err := newUploader(app)
	if err != nil {
		return err
	}
	syncer := newSyncer(app, store)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := syncer.Close(closeCtx); err != nil {
			app.log.Errorf("sync close failed, err: %v", err)
		}
	}()

	return tui.Run(ctx, tui.Options{
		Logger: app.log,
		Load: func(ctx context.Context) (*board.Canvas, error) {
			return board.Load(ctx, store, syncer, app.cfg.Board, board.Options{
				Logger:       app.log,
				HistoryLimit: app.cfg.HistoryLimit,
				Uploader:     up,
			})
		},
	})
}
