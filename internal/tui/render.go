package tui

import (
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"whiteboard/internal/board"
)

// cellBox is an item's footprint in terminal cells, inclusive on all sides.
type cellBox struct {
	x1, y1, x2, y2 int
}

func cellOf(p board.Point) (int, int) {
	return int(math.Floor(p.X / cellW)), int(math.Floor(p.Y / cellH))
}

// cellCenter is the screen point a click on cell (col, row) reports.
func cellCenter(col, row int) board.Point {
	return board.Point{X: float64(col)*cellW + cellW/2, Y: float64(row)*cellH + cellH/2}
}

func boxFor(view board.Viewport, r board.Rect) cellBox {
	tl := view.ToScreen(board.Point{X: r.X, Y: r.Y})
	br := view.ToScreen(r.BottomRight())
	b := cellBox{
		x1: int(math.Floor(tl.X / cellW)),
		y1: int(math.Floor(tl.Y / cellH)),
		x2: int(math.Ceil(br.X/cellW)) - 1,
		y2: int(math.Ceil(br.Y/cellH)) - 1,
	}
	if b.x2 <= b.x1 {
		b.x2 = b.x1 + 1
	}
	if b.y2 <= b.y1 {
		b.y2 = b.y1 + 1
	}
	return b
}

type grid [][]rune

func newGrid(width, height int) grid {
	g := make(grid, height)
	for y := range g {
		g[y] = []rune(strings.Repeat(" ", width))
	}
	return g
}

func (g grid) set(x, y int, r rune) {
	if y < 0 || y >= len(g) || x < 0 || x >= len(g[y]) {
		return
	}
	g[y][x] = r
}

func (g grid) lines() []string {
	out := make([]string, len(g))
	for i, row := range g {
		out[i] = string(row)
	}
	return out
}

// Render draws items as boxes in a width x height cell grid, lowest Z
// first. The active item gets a '#' border and, when resizable, its grips.
func Render(items board.Snapshot, view board.Viewport, width, height int, active string) []string {
	if width < 1 || height < 1 {
		return nil
	}
	g := newGrid(width, height)
	ordered := items.Clone()
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Z < ordered[j].Z })
	for _, it := range ordered {
		g.drawItem(it, boxFor(view, it.Rect), it.ID == active)
	}
	if it, ok := items.Get(active); ok && it.Resizable() {
		for _, h := range board.Handles {
			x, y := cellOf(view.ToScreen(h.Point(it.Rect)))
			g.set(x, y, handleRune)
		}
	}
	return g.lines()
}

func (g grid) drawItem(it board.Item, b cellBox, selected bool) {
	corner, horizontal, vertical := '+', '-', '|'
	if selected {
		corner, horizontal, vertical = '#', '#', '#'
	}
	for y := max(b.y1, 0); y <= min(b.y2, len(g)-1); y++ {
		for x := max(b.x1, 0); x <= min(b.x2, len(g[y])-1); x++ {
			switch {
			case (y == b.y1 || y == b.y2) && (x == b.x1 || x == b.x2):
				g.set(x, y, corner)
			case y == b.y1 || y == b.y2:
				g.set(x, y, horizontal)
			case x == b.x1 || x == b.x2:
				g.set(x, y, vertical)
			default:
				g.set(x, y, ' ')
			}
		}
	}

	inner := b.x2 - b.x1 - 1
	rows := b.y2 - b.y1 - 1
	if inner < 1 || rows < 1 {
		return
	}
	for i, line := range wrapLines(itemLines(it), inner) {
		if i >= rows {
			break
		}
		for j, r := range []rune(line) {
			g.set(b.x1+1+j, b.y1+1+i, r)
		}
	}
}

// wrapLines word-wraps each line to width cells and truncates any word that
// still overflows.
func wrapLines(lines []string, width int) []string {
	var out []string
	for _, line := range lines {
		if line == "" {
			out = append(out, "")
			continue
		}
		for _, l := range strings.Split(ansi.Wordwrap(line, width, ""), "\n") {
			if ansi.StringWidth(l) > width {
				l = ansi.Truncate(l, width, "")
			}
			out = append(out, l)
		}
	}
	return out
}
