package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"whiteboard/internal/board"
)

// UploadResponse is the body returned by the server's media endpoint.
type UploadResponse struct {
	URL    string  `json:"url"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// HTTPUploader posts uploads to a whiteboard server as multipart forms.
type HTTPUploader struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHTTPUploader(baseURL string) *HTTPUploader {
	return &HTTPUploader{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: http.DefaultClient}
}

func (u *HTTPUploader) Upload(ctx context.Context, name string, r io.Reader) (board.UploadedImage, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return board.UploadedImage{}, err
	}
	if _, err := io.Copy(part, io.LimitReader(r, MaxUploadBytes+1)); err != nil {
		return board.UploadedImage{}, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return board.UploadedImage{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL+"/api/media", &buf)
	if err != nil {
		return board.UploadedImage{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	hc := u.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return board.UploadedImage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return board.UploadedImage{}, fmt.Errorf("upload %s: %s: %s", name, resp.Status, strings.TrimSpace(string(msg)))
	}

	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return board.UploadedImage{}, fmt.Errorf("decode upload response: %w", err)
	}
	url := out.URL
	if strings.HasPrefix(url, "/") {
		url = u.BaseURL + url
	}
	return board.UploadedImage{URL: url, W: out.Width, H: out.Height}, nil
}
