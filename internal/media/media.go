package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"whiteboard/internal/board"
)

const (
	// MaxPlacedWidth caps the on-board width of a freshly uploaded image.
	MaxPlacedWidth = 400.0
	// MaxUploadBytes bounds a single upload.
	MaxUploadBytes = 20 << 20
)

var (
	ErrTooLarge    = errors.New("upload too large")
	ErrEmptyUpload = errors.New("empty upload")
	ErrNotAnImage  = errors.New("not an image")
)

// Uploader stores image bytes and reports where they can be fetched.
type Uploader = board.ImageUploader

// Size is an image's intrinsic pixel size.
type Size struct {
	W, H int
}

// Probe reads just enough of r to learn the image's dimensions.
func Probe(r io.Reader) (Size, string, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return Size{}, "", fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	return Size{W: cfg.Width, H: cfg.Height}, format, nil
}

// PlacedSize returns the board size for an image of intrinsic size s:
// anything wider than MaxPlacedWidth is scaled down keeping its aspect,
// and an unknown size falls back to the image defaults.
func PlacedSize(s Size) (w, h float64) {
	if s.W <= 0 || s.H <= 0 {
		return board.DefaultImageW, board.DefaultImageH
	}
	w, h = float64(s.W), float64(s.H)
	if w > MaxPlacedWidth {
		h = h * MaxPlacedWidth / w
		w = MaxPlacedWidth
	}
	return w, h
}

// extFor maps a decoded image format to the extension files are stored
// under. The client's file name never decides how media is served.
func extFor(format string) string {
	if format == "jpeg" {
		return ".jpg"
	}
	return "." + format
}

// DirUploader writes uploads into Dir and serves them under BaseURL.
type DirUploader struct {
	Dir     string
	BaseURL string
	Logger  *log.Logger
}

func NewDirUploader(dir, baseURL string, logger *log.Logger) (*DirUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &DirUploader{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/"), Logger: logger}, nil
}

func (u *DirUploader) Upload(ctx context.Context, name string, r io.Reader) (board.UploadedImage, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return board.UploadedImage{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return board.UploadedImage{}, ErrEmptyUpload
	}
	if len(data) > MaxUploadBytes {
		return board.UploadedImage{}, ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return board.UploadedImage{}, err
	}

	size, format, err := Probe(bytes.NewReader(data))
	if err != nil {
		return board.UploadedImage{}, err
	}
	file := uuid.NewString() + extFor(format)
	if err := os.WriteFile(filepath.Join(u.Dir, file), data, 0o644); err != nil {
		return board.UploadedImage{}, fmt.Errorf("write media: %w", err)
	}

	w, h := PlacedSize(size)
	u.Logger.WithField("file", file).Infof("stored upload, name: %s, size: %dx%d", name, size.W, size.H)
	return board.UploadedImage{URL: u.BaseURL + "/" + file, W: w, H: h}, nil
}
