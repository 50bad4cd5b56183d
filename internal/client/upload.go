package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mygpt-backend/internal/model"
	"mygpt-backend/internal/session"
)

// Upload fetches one-time signed parameters and stores data as an asset.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (model.AssetResponse, error) {
	var params model.UploadAuth
	if err := c.doJSON(ctx, http.MethodGet, "/api/upload", nil, &params); err != nil {
		return model.AssetResponse{}, fmt.Errorf("upload auth: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"token":     params.Token,
		"expire":    strconv.FormatInt(params.Expire, 10),
		"signature": params.Signature,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return model.AssetResponse{}, err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return model.AssetResponse{}, err
	}
	if _, err := part.Write(data); err != nil {
		return model.AssetResponse{}, err
	}
	if err := mw.Close(); err != nil {
		return model.AssetResponse{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/assets", &buf)
	if err != nil {
		return model.AssetResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return model.AssetResponse{}, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return model.AssetResponse{}, err
	}

	var asset model.AssetResponse
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		return model.AssetResponse{}, fmt.Errorf("decoding upload: %w", err)
	}
	return asset, nil
}

// AttachFile uploads an image from disk and returns it as a session attachment
// carrying both the stored path and the inline bytes.
func (c *Client) AttachFile(ctx context.Context, path string) (*session.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", filepath.Base(path), mime)
	}

	asset, err := c.Upload(ctx, filepath.Base(path), data)
	if err != nil {
		return nil, err
	}

	return &session.Attachment{
		Path:  asset.FilePath,
		Image: &model.InlineImage{MIMEType: mime, Data: data},
	}, nil
}
