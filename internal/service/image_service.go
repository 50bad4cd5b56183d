package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mygpt-backend/internal/assets"
	"mygpt-backend/internal/config"
	"mygpt-backend/internal/model"
	"mygpt-backend/pkg/logger"
)

var ErrImageNotConfigured = errors.New("image generation is not configured")

// ImageGenerator turns a prompt into encoded image bytes.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
	// Provider is the display name, e.g. "Cloudflare".
	Provider() string
	ModelID() string
}

// ImageService generates an image and stores it in the asset store. Failures are
// reported in the result, never as an error.
type ImageService struct {
	gen     ImageGenerator
	reason  string
	assets  *assets.Store
	timeout time.Duration
	now     func() time.Time
}

func NewImageService(cfg *config.Config, store *assets.Store) *ImageService {
	gen, err := NewImageGenerator(cfg)
	s := newImageService(gen, store, cfg.Image.Timeout)
	if err != nil {
		logger.Warnf("Image generation disabled: %v", err)
		s.reason = unavailableMessage(err)
	}
	return s
}

func newImageService(gen ImageGenerator, store *assets.Store, timeout time.Duration) *ImageService {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ImageService{gen: gen, assets: store, timeout: timeout, now: time.Now}
}

// NewImageGenerator builds the provider named by cfg.Image.Provider.
func NewImageGenerator(cfg *config.Config) (ImageGenerator, error) {
	switch cfg.Image.Provider {
	case "cloudflare", "":
		gen, err := newCloudflareGenerator(cfg.Cloudflare, cfg.Image.Timeout)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case "openai":
		gen, err := newOpenAIImageGenerator(cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unsupported image provider: %s", cfg.Image.Provider)
	}
}

// unavailableMessage is the text shown to users when no generator could be built.
func unavailableMessage(err error) string {
	switch {
	case errors.Is(err, ErrCloudflareCredentials):
		return "Cloudflare AI credentials not configured."
	case errors.Is(err, ErrOpenAIImageKey):
		return "OpenAI API key not configured."
	default:
		return err.Error()
	}
}

func (s *ImageService) Generate(ctx context.Context, req model.GenerateImageRequest) model.ImageResult {
	req.Defaults()

	if s.gen == nil {
		msg := s.reason
		if msg == "" {
			msg = ErrImageNotConfigured.Error()
		}
		return model.ImageResult{Success: false, Message: msg, Error: ErrImageNotConfigured.Error(), Prompt: req.Prompt}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entry := logger.WithFields(map[string]interface{}{
		"provider": s.gen.Provider(),
		"model":    s.gen.ModelID(),
	})
	entry.Infof("Generating image for prompt %q", req.Prompt)

	data, err := s.gen.Generate(ctx, req.Prompt)
	if err == nil && len(data) == 0 {
		err = errors.New("provider returned no image data")
	}
	if err != nil {
		entry.Errorf("Image generation failed: %v", err)
		return s.failure(req.Prompt, err)
	}

	provider := strings.ToLower(s.gen.Provider())
	name := fmt.Sprintf("%s-generated-%d.png", provider, s.now().UnixMilli())
	asset, err := s.assets.Save("/ai-generated/"+provider+"/", name, bytes.NewReader(data))
	if err != nil {
		entry.Errorf("Failed to store generated image: %v", err)
		return s.failure(req.Prompt, err)
	}

	entry.WithField("path", asset.FilePath).Info("Image generated")

	return model.ImageResult{
		Success:       true,
		ImagePath:     asset.FilePath,
		ImageURL:      asset.URL,
		ModelUsed:     s.gen.ModelID(),
		Prompt:        req.Prompt,
		GuidanceScale: req.GuidanceScale,
		Dimensions:    &model.ImageDimensions{Width: req.Width, Height: req.Height},
	}
}

func (s *ImageService) failure(prompt string, err error) model.ImageResult {
	return model.ImageResult{
		Success: false,
		Prompt:  prompt,
		Message: fmt.Sprintf("An error occurred during %s image generation: %v", s.gen.Provider(), err),
		Error:   err.Error(),
	}
}
