package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"whiteboard/internal/blockstore"
	"whiteboard/internal/board"
	"whiteboard/internal/media"
)

const maxBodySize = 1 << 20

type listResponse struct {
	Blocks []blockstore.Block `json:"blocks"`
}

type createRequest struct {
	ID            string                 `json:"id"`
	ContentType   blockstore.ContentType `json:"content_type"`
	Content       map[string]any         `json:"content"`
	PositionX     float64                `json:"position_x"`
	PositionY     float64                `json:"position_y"`
	PositionIndex int                    `json:"position_index"`
	// BoardID is accepted for symmetry with Block and must match the path.
	BoardID string `json:"board_id"`
	// Timestamps are assigned by the store; client values are ignored.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func healthz(store blockstore.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		if store == nil {
			return c.String(http.StatusServiceUnavailable, "no store")
		}
		return c.NoContent(http.StatusOK)
	}
}

func listBlocks(store blockstore.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		blocks, err := store.List(c.Request().Context(), c.Param("board"))
		if err != nil {
			return storeError(c, err)
		}
		if blocks == nil {
			blocks = []blockstore.Block{}
		}
		return c.JSON(http.StatusOK, listResponse{Blocks: blocks})
	}
}

func createBlock(store blockstore.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createRequest
		if err := decode(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		boardID := c.Param("board")
		if req.BoardID != "" && req.BoardID != boardID {
			return c.String(http.StatusBadRequest, "board_id does not match path")
		}
		b, err := store.Create(c.Request().Context(), blockstore.Block{
			ID:            strings.TrimSpace(req.ID),
			BoardID:       boardID,
			ContentType:   req.ContentType,
			Content:       req.Content,
			PositionX:     req.PositionX,
			PositionY:     req.PositionY,
			PositionIndex: req.PositionIndex,
		})
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusCreated, b)
	}
}

func updateBlock(store blockstore.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var p blockstore.Patch
		if err := decode(c, &p); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		b, err := store.Update(c.Request().Context(), c.Param("id"), p)
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusOK, b)
	}
}

func deleteBlock(store blockstore.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.Delete(c.Request().Context(), c.Param("id")); err != nil {
			return storeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func uploadMedia(up board.ImageUploader) echo.HandlerFunc {
	return func(c echo.Context) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return c.String(http.StatusBadRequest, "missing file")
		}
		f, err := fh.Open()
		if err != nil {
			return c.String(http.StatusBadRequest, "unreadable file")
		}
		defer f.Close()

		img, err := up.Upload(c.Request().Context(), fh.Filename, f)
		switch {
		case errors.Is(err, media.ErrNotAnImage), errors.Is(err, media.ErrEmptyUpload):
			return c.String(http.StatusBadRequest, err.Error())
		case errors.Is(err, media.ErrTooLarge):
			return c.String(http.StatusRequestEntityTooLarge, err.Error())
		case err != nil:
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, media.UploadResponse{URL: img.URL, Width: img.W, Height: img.H})
	}
}

func decode(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// storeError maps store sentinels onto HTTP statuses.
func storeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, blockstore.ErrNotFound):
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, blockstore.ErrConflict):
		return c.String(http.StatusConflict, err.Error())
	case errors.Is(err, blockstore.ErrInvalidBlock):
		return c.String(http.StatusBadRequest, err.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}
