package cli

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"whiteboard/internal/blockstore"
	"whiteboard/internal/board"
	"whiteboard/internal/config"
	"whiteboard/internal/media"
)

// openStore builds the configured Block Store, wrapped in the Redis cache
// when redis_url is set. The returned func releases everything it opened.
func openStore(ctx context.Context, app *App) (blockstore.Store, func(), error) {
	cfg := app.cfg
	var (
		store   blockstore.Store
		closers []func() error
	)
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := blockstore.OpenSQLite(ctx, cfg.DataDir, app.log)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store = s
		closers = append(closers, s.Close)
	case config.StoreHTTP:
		store = blockstore.NewClient(cfg.ServerURL)
	case config.StoreAzTables:
		s, err := blockstore.NewTable(ctx, cfg.AzureConnectionString, cfg.AzureTable, app.log)
		if err != nil {
			return nil, nil, fmt.Errorf("open table store: %w", err)
		}
		store = s
	default:
		return nil, nil, fmt.Errorf("%w: store %q", config.ErrInvalid, cfg.Store)
	}

	if cfg.RedisURL != "" {
		rc := redis.NewClient(parseRedis(cfg.RedisURL))
		closers = append(closers, rc.Close)
		store = blockstore.NewCache(store, rc, cfg.CacheTTL, app.log)
	}

	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				app.log.Warnf("close failed, err: %v", err)
			}
		}
	}
	return store, release, nil
}

// parseRedis accepts a redis:// URL or the "host:port,password=...,ssl=True"
// form Azure hands out.
func parseRedis(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

// newUploader picks where uploaded images go: the server's media endpoint
// for a remote store, the local media directory otherwise.
func newUploader(app *App) (board.ImageUploader, error) {
	if app.cfg.Store == config.StoreHTTP {
		return media.NewHTTPUploader(app.cfg.ServerURL), nil
	}
	up, err := media.NewDirUploader(app.cfg.MediaDir, app.cfg.MediaBaseURL, app.log)
	if err != nil {
		return nil, err
	}
	return up, nil
}
