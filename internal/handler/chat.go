package handler

import (
	"errors"
	"net/http"

	"mygpt-backend/internal/assets"
	"mygpt-backend/internal/auth"
	"mygpt-backend/internal/model"
	"mygpt-backend/internal/service"
	"mygpt-backend/internal/storage"
	"mygpt-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService *service.ChatService
	assets      *assets.Store
}

func NewChatHandler(chatService *service.ChatService, store *assets.Store) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		assets:      store,
	}
}

func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req model.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	id, err := h.chatService.CreateChat(auth.UserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model.CreateChatResponse{ID: id})
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	summaries, err := h.chatService.ListChats(auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summaries)
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	chat, err := h.chatService.GetChat(auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, chat)
}

func (h *ChatHandler) AppendTurns(c *gin.Context) {
	var req model.AppendTurnsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	n, err := h.chatService.AppendTurns(auth.UserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.AppendTurnsResponse{Appended: n})
}

func (h *ChatHandler) ExportChat(c *gin.Context) {
	chat, err := h.chatService.GetChat(auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	page, err := service.ExportHTML(chat, h.assets.URL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="chat-`+chat.ID+`.html"`)
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// respondError maps service and storage errors to status codes. Chats that exist
// but belong to someone else are indistinguishable from missing ones.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrChatNotFound):
		c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "Chat not found"})
	case errors.Is(err, service.ErrEmptyChat),
		errors.Is(err, service.ErrInvalidTurn),
		errors.Is(err, service.ErrEmptyPrompt),
		errors.Is(err, storage.ErrInvalidData):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
	default:
		logger.Errorf("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Internal server error"})
	}
}
