package tui

import "time"

type Mode int

const (
	ModeNormal Mode = iota
	ModeEditText
	ModeEditTitle
	ModeEditSecret
	ModeImagePath
	ModeExportPath
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "NORMAL"
	case ModeEditText:
		return "EDIT"
	case ModeEditTitle:
		return "TITLE"
	case ModeEditSecret:
		return "SECRET"
	case ModeImagePath:
		return "IMAGE"
	case ModeExportPath:
		return "EXPORT"
	default:
		return "UNKNOWN"
	}
}

// Every terminal cell covers cellW x cellH screen units.
const (
	cellW = 8.0
	cellH = 16.0
)

const (
	doubleClickWindow = 400 * time.Millisecond
	zoomStep          = 1.25
	panCells          = 4
	defaultExportName = "board.png"

	handleRune = 'o'
	maskRune   = '*'
	maskWidth  = 8
)
