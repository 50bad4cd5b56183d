package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"mygpt-backend/internal/config"
	"mygpt-backend/internal/utils"
)

var ErrCloudflareCredentials = errors.New("cloudflare ai credentials are not configured")

// cloudflareGenerator calls the Workers AI run endpoint. Stable Diffusion models
// answer with raw PNG bytes; newer models wrap base64 in a JSON envelope.
type cloudflareGenerator struct {
	client   *http.Client
	endpoint string
	token    string
	model    string
}

type cloudflareResponse struct {
	Result struct {
		Image  string `json:"image"`
		Base64 string `json:"base64"`
	} `json:"result"`
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func newCloudflareGenerator(cfg config.CloudflareConfig, timeout time.Duration) (*cloudflareGenerator, error) {
	if cfg.AccountID == "" || cfg.APIToken == "" {
		return nil, ErrCloudflareCredentials
	}

	return &cloudflareGenerator{
		client:   utils.NewHTTPClient(timeout),
		endpoint: fmt.Sprintf("%s/accounts/%s/ai/run/%s", strings.TrimRight(cfg.BaseURL, "/"), cfg.AccountID, cfg.Model),
		token:    cfg.APIToken,
		model:    cfg.Model,
	}, nil
}

func (g *cloudflareGenerator) Provider() string { return "Cloudflare" }

func (g *cloudflareGenerator) ModelID() string {
	return "cloudflare-" + path.Base(g.model)
}

func (g *cloudflareGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Cloudflare AI returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return data, nil
	}

	var envelope cloudflareResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !envelope.Success && len(envelope.Errors) > 0 {
		return nil, fmt.Errorf("Cloudflare AI error %d: %s", envelope.Errors[0].Code, envelope.Errors[0].Message)
	}

	encoded := envelope.Result.Image
	if encoded == "" {
		encoded = envelope.Result.Base64
	}
	if encoded == "" {
		return nil, errors.New("no image data received from Cloudflare AI")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
