package board

import "errors"

var (
	// ErrLoad wraps any failure to fetch a board's blocks at startup.
	ErrLoad = errors.New("load board")

	ErrUnknownItem = errors.New("unknown item")
	ErrWrongKind   = errors.New("wrong item kind")
	ErrNoUploader  = errors.New("no image uploader configured")

	// ErrUnsupported marks blocks that decode to no known item kind.
	ErrUnsupported = errors.New("unsupported block")
)
