package tui

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"

	"whiteboard/internal/board"
)

const (
	exportPadding  = 20.0
	exportFontSize = 12.0
	exportLineH    = 16.0
	exportCharW    = 7.2
	maxExportSide  = 16384
	maxExportCells = 4096
)

var (
	ErrNothingToExport = errors.New("nothing to export")
	ErrExportTooLarge  = errors.New("board too large to export")
)

// RenderPNG draws the board in canvas units, one pixel per unit, cropped to
// the items' bounds plus padding.
func RenderPNG(items board.Snapshot) (image.Image, error) {
	if len(items) == 0 {
		return nil, ErrNothingToExport
	}
	minX, minY, maxX, maxY := bounds(items)
	minX -= exportPadding
	minY -= exportPadding
	maxX += exportPadding
	maxY += exportPadding

	w, h := int(math.Ceil(maxX-minX)), int(math.Ceil(maxY-minY))
	if w > maxExportSide || h > maxExportSide {
		return nil, fmt.Errorf("%w: %dx%d", ErrExportTooLarge, w, h)
	}

	dc := gg.NewContext(w, h)
	dc.SetColor(color.White)
	dc.Clear()

	ttf, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	dc.SetFontFace(truetype.NewFace(ttf, &truetype.Options{
		Size:    exportFontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	}))

	ordered := items.Clone()
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Z < ordered[j].Z })
	for _, it := range ordered {
		drawItemPNG(dc, it, it.X-minX, it.Y-minY)
	}
	return dc.Image(), nil
}

// ExportPNG writes RenderPNG's output to filename.
func ExportPNG(items board.Snapshot, filename string) error {
	img, err := RenderPNG(items)
	if err != nil {
		return err
	}
	return gg.SavePNG(filename, img)
}

// ExportText writes the board as it renders in the terminal at 100% zoom,
// cropped to the items' bounds, one line per cell row.
func ExportText(items board.Snapshot, filename string) error {
	if len(items) == 0 {
		return ErrNothingToExport
	}
	minX, minY, maxX, maxY := bounds(items)
	cols := int(math.Ceil((maxX - minX) / cellW))
	rows := int(math.Ceil((maxY - minY) / cellH))
	if cols > maxExportCells || rows > maxExportCells {
		return fmt.Errorf("%w: %dx%d cells", ErrExportTooLarge, cols, rows)
	}
	view := board.NewViewport(float64(cols)*cellW, float64(rows)*cellH)
	view.Pan = board.Point{X: -minX, Y: -minY}

	var sb strings.Builder
	for _, line := range Render(items, view, max(cols, 1), max(rows, 1), "") {
		sb.WriteString(strings.TrimRight(line, " "))
		sb.WriteByte('\n')
	}
	return os.WriteFile(filename, []byte(sb.String()), 0o644)
}

func bounds(items board.Snapshot) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, it := range items {
		minX = math.Min(minX, it.X)
		minY = math.Min(minY, it.Y)
		maxX = math.Max(maxX, it.X+it.W)
		maxY = math.Max(maxY, it.Y+it.H)
	}
	return minX, minY, maxX, maxY
}

func drawItemPNG(dc *gg.Context, it board.Item, x, y float64) {
	dc.SetColor(color.White)
	dc.DrawRectangle(x, y, it.W, it.H)
	dc.Fill()

	dc.SetLineWidth(1.0)
	dc.SetColor(color.Black)
	dc.DrawRectangle(x, y, it.W, it.H)
	dc.Stroke()

	if _, ok := it.Body.(board.Image); ok {
		dc.SetColor(color.Gray{Y: 170})
		dc.DrawLine(x, y, x+it.W, y+it.H)
		dc.DrawLine(x+it.W, y, x, y+it.H)
		dc.Stroke()
	}

	cols := int((it.W - exportLineH) / exportCharW)
	rows := int((it.H - exportLineH/2) / exportLineH)
	if cols < 1 || rows < 1 {
		return
	}
	dc.Push()
	dc.DrawRectangle(x, y, it.W, it.H)
	dc.Clip()
	dc.SetColor(color.Black)
	for i, line := range wrapLines(itemLines(it), cols) {
		if i >= rows {
			break
		}
		dc.DrawString(line, x+exportLineH/2, y+exportLineH*float64(i+1))
	}
	dc.ResetClip()
	dc.Pop()
}
