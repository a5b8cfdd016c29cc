package blockstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a remote Block Store over the HTTP API served by
// internal/server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type listResponse struct {
	Blocks []Block `json:"blocks"`
}

func (c *Client) List(ctx context.Context, boardID string) ([]Block, error) {
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/api/boards/"+url.PathEscape(boardID)+"/blocks", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Blocks == nil {
		resp.Blocks = []Block{}
	}
	return resp.Blocks, nil
}

func (c *Client) Create(ctx context.Context, b Block) (Block, error) {
	var out Block
	err := c.do(ctx, http.MethodPost, "/api/boards/"+url.PathEscape(b.BoardID)+"/blocks", b, &out)
	return out, err
}

func (c *Client) Update(ctx context.Context, id string, p Patch) (Block, error) {
	var out Block
	err := c.do(ctx, http.MethodPatch, "/api/blocks/"+url.PathEscape(id), p, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/blocks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(code int, msg string) error {
	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidBlock, msg)
	default:
		return fmt.Errorf("block store: status %d: %s", code, msg)
	}
}
