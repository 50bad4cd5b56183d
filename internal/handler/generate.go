package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"mygpt-backend/internal/model"
	"mygpt-backend/internal/utils"
	"mygpt-backend/pkg/logger"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
)

const heartbeatInterval = 15 * time.Second

type TextStreamer interface {
	Stream(ctx context.Context, req model.GenerateTextRequest) (*schema.StreamReader[*schema.Message], error)
}

type ImageGenerator interface {
	Generate(ctx context.Context, req model.GenerateImageRequest) model.ImageResult
}

type GenerateHandler struct {
	text   TextStreamer
	images ImageGenerator
}

func NewGenerateHandler(text TextStreamer, images ImageGenerator) *GenerateHandler {
	return &GenerateHandler{text: text, images: images}
}

type streamItem struct {
	text string
	err  error
}

// GenerateText answers with an SSE stream of chunk events followed by done. A
// failure after the stream has started is sent as an error event.
func (h *GenerateHandler) GenerateText(c *gin.Context) {
	if h.text == nil {
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{Error: "Text generation is not configured"})
		return
	}

	var req model.GenerateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	ctx := c.Request.Context()
	stream, err := h.text.Stream(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		respondError(c, err)
		return
	}
	defer stream.Close()

	items := make(chan streamItem)
	go func() {
		defer close(items)
		for {
			msg, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			item := streamItem{err: err}
			if msg != nil {
				item.text = msg.Content
			}
			select {
			case items <- item:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	sse := utils.NewSSEWriter(c.Writer)
	c.Status(http.StatusOK)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case item, ok := <-items:
			if !ok {
				sse.Close()
				return
			}
			if item.err != nil {
				logger.Errorf("Text stream failed: %v", item.err)
				sse.WriteJSON(utils.EventError, model.ErrorResponse{Error: "Generation failed", Message: item.err.Error()})
				sse.Close()
				return
			}
			if item.text == "" {
				continue
			}
			if err := sse.WriteJSON(utils.EventChunk, model.StreamChunk{Text: item.text}); err != nil {
				logger.Warnf("Failed to write SSE chunk: %v", err)
				return
			}

		case <-heartbeat.C:
			if _, err := io.WriteString(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
			c.Writer.Flush()

		case <-ctx.Done():
			return
		}
	}
}

// GenerateImage always answers 200 once the request parses; the outcome is in
// the result body.
func (h *GenerateHandler) GenerateImage(c *gin.Context) {
	var req model.GenerateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: "prompt is required"})
		return
	}

	c.JSON(http.StatusOK, h.images.Generate(c.Request.Context(), req))
}
