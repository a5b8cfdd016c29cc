package blockstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentShape ContentType = "shape"
)

var (
	ErrNotFound     = errors.New("block not found")
	ErrConflict     = errors.New("block already exists")
	ErrInvalidBlock = errors.New("invalid block")
)

// Block is one persisted piece of board content. Content is an opaque JSON
// object; the store never interprets its keys.
type Block struct {
	ID            string         `json:"id"`
	BoardID       string         `json:"board_id"`
	ContentType   ContentType    `json:"content_type"`
	Content       map[string]any `json:"content"`
	PositionX     float64        `json:"position_x"`
	PositionY     float64        `json:"position_y"`
	PositionIndex int            `json:"position_index"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Patch is a partial update. Content keys are shallow-merged into the
// stored content object; nil position fields are left untouched.
type Patch struct {
	Content       map[string]any `json:"content,omitempty"`
	PositionX     *float64       `json:"position_x,omitempty"`
	PositionY     *float64       `json:"position_y,omitempty"`
	PositionIndex *int           `json:"position_index,omitempty"`
}

// Store is the persistence contract consumed by the board engine.
type Store interface {
	List(ctx context.Context, boardID string) ([]Block, error)
	Create(ctx context.Context, b Block) (Block, error)
	Update(ctx context.Context, id string, p Patch) (Block, error)
	Delete(ctx context.Context, id string) error
}

func (p Patch) Empty() bool {
	return len(p.Content) == 0 && p.PositionX == nil && p.PositionY == nil && p.PositionIndex == nil
}

// Merge returns p overlaid with q; q wins on every field it sets.
func (p Patch) Merge(q Patch) Patch {
	out := Patch{
		PositionX:     p.PositionX,
		PositionY:     p.PositionY,
		PositionIndex: p.PositionIndex,
		Content:       CloneContent(p.Content),
	}
	if q.PositionX != nil {
		out.PositionX = q.PositionX
	}
	if q.PositionY != nil {
		out.PositionY = q.PositionY
	}
	if q.PositionIndex != nil {
		out.PositionIndex = q.PositionIndex
	}
	if len(q.Content) > 0 {
		if out.Content == nil {
			out.Content = make(map[string]any, len(q.Content))
		}
		for k, v := range q.Content {
			out.Content[k] = v
		}
	}
	return out
}

// Apply returns b with the patch applied. UpdatedAt is left to the caller.
func (p Patch) Apply(b Block) Block {
	b.Content = CloneContent(b.Content)
	if b.Content == nil {
		b.Content = map[string]any{}
	}
	for k, v := range p.Content {
		b.Content[k] = v
	}
	if p.PositionX != nil {
		b.PositionX = *p.PositionX
	}
	if p.PositionY != nil {
		b.PositionY = *p.PositionY
	}
	if p.PositionIndex != nil {
		b.PositionIndex = *p.PositionIndex
	}
	return b
}

func (p Patch) String() string {
	parts := make([]string, 0, 4)
	if p.PositionX != nil || p.PositionY != nil {
		parts = append(parts, "position")
	}
	if p.PositionIndex != nil {
		parts = append(parts, "index")
	}
	for k := range p.Content {
		parts = append(parts, "content."+k)
	}
	return strings.Join(parts, ",")
}

// Validate checks the fields every store requires on create.
func Validate(b Block) error {
	if strings.TrimSpace(b.BoardID) == "" {
		return fmt.Errorf("%w: board_id is required", ErrInvalidBlock)
	}
	switch b.ContentType {
	case ContentText, ContentImage, ContentShape:
	default:
		return fmt.Errorf("%w: unknown content_type %q", ErrInvalidBlock, b.ContentType)
	}
	return nil
}

func CloneContent(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }

// sortBlocks orders blocks by stacking index, then creation time, then id.
func sortBlocks(blocks []Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		a, b := blocks[i], blocks[j]
		if a.PositionIndex != b.PositionIndex {
			return a.PositionIndex < b.PositionIndex
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
