package blockstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Table is a Store backed by an Azure Storage table. Blocks are partitioned
// by board id and keyed by block id.
type Table struct {
	client *aztables.Client
	log    *log.Logger
	now    func() time.Time
}

type blockEntity struct {
	aztables.Entity
	ContentType   string  `json:"ContentType"`
	Content       string  `json:"Content"`
	PositionX     float64 `json:"PositionX"`
	PositionY     float64 `json:"PositionY"`
	PositionIndex int     `json:"PositionIndex"`
	CreatedAtMs   int64   `json:"CreatedAtMs"`
	UpdatedAtMs   int64   `json:"UpdatedAtMs"`
}

// NewTable connects to the named table, creating it when missing.
func NewTable(ctx context.Context, connStr, table string, logger *log.Logger) (*Table, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	c := svc.NewClient(table)
	if _, err := c.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return nil, err
		}
	}
	return &Table{client: c, log: logger, now: time.Now}, nil
}

func encodeEntity(b Block) ([]byte, error) {
	content, err := json.Marshal(b.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}
	return json.Marshal(blockEntity{
		Entity:        aztables.Entity{PartitionKey: b.BoardID, RowKey: b.ID},
		ContentType:   string(b.ContentType),
		Content:       string(content),
		PositionX:     b.PositionX,
		PositionY:     b.PositionY,
		PositionIndex: b.PositionIndex,
		CreatedAtMs:   b.CreatedAt.UnixMilli(),
		UpdatedAtMs:   b.UpdatedAt.UnixMilli(),
	})
}

func decodeEntity(data []byte) (Block, error) {
	var ent blockEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return Block{}, err
	}
	b := Block{
		ID:            ent.RowKey,
		BoardID:       ent.PartitionKey,
		ContentType:   ContentType(ent.ContentType),
		PositionX:     ent.PositionX,
		PositionY:     ent.PositionY,
		PositionIndex: ent.PositionIndex,
		CreatedAt:     time.UnixMilli(ent.CreatedAtMs).UTC(),
		UpdatedAt:     time.UnixMilli(ent.UpdatedAtMs).UTC(),
	}
	if ent.Content != "" {
		if err := json.Unmarshal([]byte(ent.Content), &b.Content); err != nil {
			return Block{}, fmt.Errorf("decode content of %s: %w", b.ID, err)
		}
	}
	if b.Content == nil {
		b.Content = map[string]any{}
	}
	return b, nil
}

func quoteFilter(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func (t *Table) List(ctx context.Context, boardID string) ([]Block, error) {
	filter := "PartitionKey eq " + quoteFilter(boardID)
	pager := t.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []Block{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			b, err := decodeEntity(e)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
	}
	sortBlocks(out)
	return out, nil
}

func (t *Table) Create(ctx context.Context, b Block) (Block, error) {
	if err := Validate(b); err != nil {
		return Block{}, err
	}
	if strings.TrimSpace(b.ID) == "" {
		b.ID = uuid.NewString()
	}
	if b.Content == nil {
		b.Content = map[string]any{}
	}
	now := t.now().UTC().Truncate(time.Millisecond)
	b.CreatedAt, b.UpdatedAt = now, now
	payload, err := encodeEntity(b)
	if err != nil {
		return Block{}, err
	}
	if _, err := t.client.AddEntity(ctx, payload, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict {
			return Block{}, fmt.Errorf("%w: %s", ErrConflict, b.ID)
		}
		return Block{}, err
	}
	return b, nil
}

// find locates a block by id alone; the partition is unknown to callers.
func (t *Table) find(ctx context.Context, id string) (Block, azcore.ETag, error) {
	filter := "RowKey eq " + quoteFilter(id)
	pager := t.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return Block{}, "", err
		}
		if len(resp.Entities) == 0 {
			continue
		}
		b, err := decodeEntity(resp.Entities[0])
		if err != nil {
			return Block{}, "", err
		}
		got, err := t.client.GetEntity(ctx, b.BoardID, b.ID, nil)
		if err != nil {
			return Block{}, "", err
		}
		return b, got.ETag, nil
	}
	return Block{}, "", fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (t *Table) Update(ctx context.Context, id string, p Patch) (Block, error) {
	b, etag, err := t.find(ctx, id)
	if err != nil {
		return Block{}, err
	}
	b = p.Apply(b)
	b.UpdatedAt = t.now().UTC().Truncate(time.Millisecond)
	payload, err := encodeEntity(b)
	if err != nil {
		return Block{}, err
	}
	if _, err := t.client.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace}); err != nil {
		return Block{}, err
	}
	return b, nil
}

func (t *Table) Delete(ctx context.Context, id string) error {
	b, etag, err := t.find(ctx, id)
	if err != nil {
		return err
	}
	if _, err := t.client.DeleteEntity(ctx, b.BoardID, b.ID, &aztables.DeleteEntityOptions{IfMatch: &etag}); err != nil {
		return err
	}
	t.log.WithFields(log.Fields{"op": "delete", "board": b.BoardID, "block": id}).Debug("table entity removed")
	return nil
}
