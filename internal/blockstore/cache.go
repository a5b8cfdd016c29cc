package blockstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	blocksCacheKeyPrefix = "whiteboard:blocks:"
	blockBoardsKey       = "whiteboard:block-boards"
)

func blocksCacheKey(boardID string) string {
	return blocksCacheKeyPrefix + boardID
}

// Cache wraps a Store with a Redis read-through cache for List. Every write
// evicts the cached list of the affected board.
type Cache struct {
	base  Store
	redis *redis.Client
	ttl   time.Duration
	log   *log.Logger
}

// NewCache creates a caching Store wrapper using the provided Redis client and TTL.
func NewCache(base Store, client *redis.Client, ttl time.Duration, logger *log.Logger) *Cache {
	if base == nil {
		panic("blockstore.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Cache{base: base, redis: client, ttl: ttl, log: logger}
}

func (c *Cache) List(ctx context.Context, boardID string) ([]Block, error) {
	if blocks, ok := c.loadFromCache(ctx, boardID); ok {
		return blocks, nil
	}
	blocks, err := c.base.List(ctx, boardID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, boardID, blocks)
	return blocks, nil
}

func (c *Cache) Create(ctx context.Context, b Block) (Block, error) {
	created, err := c.base.Create(ctx, b)
	if err != nil {
		return Block{}, err
	}
	c.remember(ctx, created.ID, created.BoardID)
	c.evict(ctx, created.BoardID)
	return created, nil
}

func (c *Cache) Update(ctx context.Context, id string, p Patch) (Block, error) {
	updated, err := c.base.Update(ctx, id, p)
	if err != nil {
		return Block{}, err
	}
	c.evict(ctx, updated.BoardID)
	return updated, nil
}

func (c *Cache) Delete(ctx context.Context, id string) error {
	// Resolve the board before the row disappears.
	boardID, _ := c.redis.HGet(ctx, blockBoardsKey, id).Result()
	if err := c.base.Delete(ctx, id); err != nil {
		return err
	}
	if boardID != "" {
		c.evict(ctx, boardID)
	}
	if err := c.redis.HDel(ctx, blockBoardsKey, id).Err(); err != nil {
		c.log.WithError(err).WithField("block", id).Warn("forget block board")
	}
	return nil
}

func (c *Cache) loadFromCache(ctx context.Context, boardID string) ([]Block, bool) {
	if c.ttl == 0 {
		return nil, false
	}
	data, err := c.redis.Get(ctx, blocksCacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).WithField("board", boardID).Warn("read cached blocks")
		}
		return nil, false
	}
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		c.log.WithError(err).WithField("board", boardID).Warn("decode cached blocks")
		return nil, false
	}
	return blocks, true
}

func (c *Cache) store(ctx context.Context, boardID string, blocks []Block) {
	if c.ttl == 0 {
		return
	}
	data, err := json.Marshal(blocks)
	if err != nil {
		return
	}
	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, blocksCacheKey(boardID), data, c.ttl)
	if len(blocks) > 0 {
		fields := make(map[string]any, len(blocks))
		for _, b := range blocks {
			fields[b.ID] = boardID
		}
		pipe.HSet(ctx, blockBoardsKey, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.WithError(err).WithField("board", boardID).Warn("cache blocks")
	}
}

func (c *Cache) remember(ctx context.Context, id, boardID string) {
	if err := c.redis.HSet(ctx, blockBoardsKey, id, boardID).Err(); err != nil {
		c.log.WithError(err).WithField("block", id).Warn("remember block board")
	}
}

func (c *Cache) evict(ctx context.Context, boardID string) {
	if err := c.redis.Del(ctx, blocksCacheKey(boardID)).Err(); err != nil {
		c.log.WithError(err).WithField("board", boardID).Warn("evict cached blocks")
	}
}
