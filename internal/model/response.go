package model

import "time"

type CreateChatResponse struct {
	ID string `json:"id"`
}

type AppendTurnsResponse struct {
	Appended int `json:"appended"`
}

type ImageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImageResult is the outcome of one image generation. Failures are reported in-band
// with Success=false rather than as an HTTP error.
type ImageResult struct {
	Success       bool             `json:"success"`
	ImagePath     string           `json:"image_path,omitempty"`
	ImageURL      string           `json:"image_url,omitempty"`
	ModelUsed     string           `json:"model_used,omitempty"`
	Prompt        string           `json:"prompt,omitempty"`
	GuidanceScale float64          `json:"guidance_scale,omitempty"`
	Dimensions    *ImageDimensions `json:"dimensions,omitempty"`
	Message       string           `json:"message,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// UploadAuth is the short-lived signed parameter set an uploader presents to the asset store.
type UploadAuth struct {
	Token     string `json:"token"`
	Expire    int64  `json:"expire"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key,omitempty"`
}

type AssetResponse struct {
	FilePath string `json:"file_path"`
	URL      string `json:"url"`
}

type StreamChunk struct {
	Text string `json:"text"`
}

type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment"`
	Domain      string    `json:"domain"`
	Port        int       `json:"port"`
	Server      string    `json:"server"`
	Version     string    `json:"version"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
