package handler

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mygpt-backend/internal/assets"
	"mygpt-backend/internal/model"
	"mygpt-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

const defaultUploadFolder = "/uploads"

type AssetHandler struct {
	signer   *assets.Signer
	store    *assets.Store
	maxBytes int64
}

func NewAssetHandler(signer *assets.Signer, store *assets.Store, maxBytes int64) *AssetHandler {
	return &AssetHandler{signer: signer, store: store, maxBytes: maxBytes}
}

// UploadAuth hands out one signed parameter set for a single upload.
func (h *AssetHandler) UploadAuth(c *gin.Context) {
	params, err := h.signer.Issue()
	if err != nil {
		logger.Errorf("Failed to issue upload parameters: %v", err)
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{Error: "Uploads are not configured"})
		return
	}

	c.JSON(http.StatusOK, params)
}

// Upload accepts a multipart image together with the signed parameters.
func (h *AssetHandler) Upload(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	expire, err := strconv.ParseInt(c.PostForm("expire"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: "expire must be a unix timestamp"})
		return
	}

	if err := h.signer.Verify(c.PostForm("token"), expire, c.PostForm("signature")); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, assets.ErrNoPrivateKey) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, model.ErrorResponse{Error: "Upload rejected", Message: err.Error()})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: "file is required"})
		return
	}

	f, err := header.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: "empty file"})
		return
	}
	head = head[:n]
	if !strings.HasPrefix(http.DetectContentType(head), "image/") {
		c.JSON(http.StatusUnsupportedMediaType, model.ErrorResponse{Error: "Only images can be uploaded"})
		return
	}

	folder := c.PostForm("folder")
	if folder == "" {
		folder = defaultUploadFolder
	}

	asset, err := h.store.Save(folder, header.Filename, io.MultiReader(bytes.NewReader(head), f))
	if err != nil {
		if errors.Is(err, assets.ErrInvalidName) {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, asset)
}
