package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"whiteboard/internal/blockstore"
	"whiteboard/internal/board"
)

// Options configures the HTTP Block Store server.
type Options struct {
	Store    blockstore.Store
	Uploader board.ImageUploader
	// MediaDir is served read-only under /media when set.
	MediaDir string
	Logger   *log.Logger
}

// New builds the echo instance with every route registered.
func New(opts Options) *echo.Echo {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	e.Use(requestTelemetry(opts.Logger))
	Register(e, opts)
	return e
}

// Register wires the API routes onto e.
func Register(e *echo.Echo, opts Options) {
	e.GET("/api/boards/:board/blocks", listBlocks(opts.Store))
	e.POST("/api/boards/:board/blocks", createBlock(opts.Store))
	e.PATCH("/api/blocks/:id", updateBlock(opts.Store))
	e.DELETE("/api/blocks/:id", deleteBlock(opts.Store))
	e.GET("/healthz", healthz(opts.Store))
	if opts.Uploader != nil {
		e.POST("/api/media", uploadMedia(opts.Uploader))
	}
	if opts.MediaDir != "" {
		e.Static("/media", opts.MediaDir)
	}
}

// Serve runs e on addr until ctx is cancelled, then shuts it down.
func Serve(ctx context.Context, e *echo.Echo, addr string, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening, addr: %s", addr)
		errCh <- e.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}
