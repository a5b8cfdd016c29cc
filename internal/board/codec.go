package board

import (
	"fmt"
	"math"

	"whiteboard/internal/blockstore"
)

// Content keys shared with every Block Store client.
const (
	keyWidth       = "width"
	keyHeight      = "height"
	keyHTML        = "html"
	keyURL         = "url"
	keyTitle       = "title"
	keySecret      = "secret"
	keySubtype     = "subtype"
	keySecretShown = "secretShown"

	subtypeGrid = "grid"
)

// Default sizes for newly created items.
const (
	DefaultTextW  = 400.0
	DefaultTextH  = 120.0
	DefaultGridW  = 340.0
	DefaultGridH  = 180.0
	DefaultImageW = 200.0
	DefaultImageH = 150.0

	DefaultGridTitle  = "Title"
	DefaultGridSecret = "Secret Info"
)

func defaultSize(k Kind) (w, h float64) {
	switch k {
	case KindGrid:
		return DefaultGridW, DefaultGridH
	case KindImage:
		return DefaultImageW, DefaultImageH
	default:
		return DefaultTextW, DefaultTextH
	}
}

// ItemFromBlock decodes a stored block. Blocks of an unknown content type,
// including legacy shapes, yield ErrUnsupported.
func ItemFromBlock(b blockstore.Block) (Item, error) {
	var body Body
	switch b.ContentType {
	case blockstore.ContentText:
		if str(b.Content, keySubtype) == subtypeGrid {
			shown, _ := b.Content[keySecretShown].(bool)
			body = Grid{
				Title:       str(b.Content, keyTitle),
				Secret:      str(b.Content, keySecret),
				SecretShown: shown,
			}
		} else {
			body = Text{HTML: str(b.Content, keyHTML)}
		}
	case blockstore.ContentImage:
		body = Image{URL: str(b.Content, keyURL)}
	default:
		return Item{}, fmt.Errorf("%w: block %s has content type %q", ErrUnsupported, b.ID, b.ContentType)
	}

	w, h := defaultSize(body.Kind())
	if v, ok := num(b.Content, keyWidth); ok {
		w = v
	}
	if v, ok := num(b.Content, keyHeight); ok {
		h = v
	}
	return Item{
		ID:   b.ID,
		Rect: Rect{X: b.PositionX, Y: b.PositionY, W: math.Max(MinSize, w), H: math.Max(MinSize, h)},
		Z:    b.PositionIndex,
		Body: body,
	}, nil
}

// BlockFromItem encodes it as a full block for create.
func BlockFromItem(boardID string, it Item) blockstore.Block {
	ct := blockstore.ContentText
	if it.Kind() == KindImage {
		ct = blockstore.ContentImage
	}
	return blockstore.Block{
		ID:            it.ID,
		BoardID:       boardID,
		ContentType:   ct,
		Content:       contentOf(it),
		PositionX:     it.X,
		PositionY:     it.Y,
		PositionIndex: it.Z,
	}
}

func contentOf(it Item) map[string]any {
	c := map[string]any{keyWidth: it.W, keyHeight: it.H}
	switch b := it.Body.(type) {
	case Text:
		c[keyHTML] = b.HTML
	case Grid:
		c[keySubtype] = subtypeGrid
		c[keyTitle] = b.Title
		c[keySecret] = b.Secret
		c[keySecretShown] = b.SecretShown
	case Image:
		c[keyURL] = b.URL
	}
	return c
}

// diffPatch returns the minimal patch turning from into to. Both must share
// an id and a kind.
func diffPatch(from, to Item) blockstore.Patch {
	var p blockstore.Patch
	if from.X != to.X {
		p.PositionX = blockstore.Float(to.X)
	}
	if from.Y != to.Y {
		p.PositionY = blockstore.Float(to.Y)
	}
	if from.Z != to.Z {
		p.PositionIndex = blockstore.Int(to.Z)
	}
	before, after := contentOf(from), contentOf(to)
	for k, v := range after {
		// Secret visibility is local display state.
		if k == keySecretShown {
			continue
		}
		if before[k] != v {
			if p.Content == nil {
				p.Content = map[string]any{}
			}
			p.Content[k] = v
		}
	}
	return p
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// num reads a numeric content value. JSON decoding yields float64, while
// blocks built in-process may carry ints.
func num(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
