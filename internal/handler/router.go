package handler

import (
	"net/http"
	"time"

	"mygpt-backend/internal/assets"
	"mygpt-backend/internal/auth"
	"mygpt-backend/internal/config"
	"mygpt-backend/internal/model"
	"mygpt-backend/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Version is overridden at build time with -ldflags "-X ...".
var Version = "1.0.0"

// Services is everything the router dispatches to.
type Services struct {
	Chats  *service.ChatService
	Text   TextStreamer
	Images ImageGenerator
	Assets *assets.Store
	Signer *assets.Signer
	Auth   *auth.Manager
}

func NewRouter(cfg *config.Config, svc Services) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(HTTPSRedirect(cfg.Server))

	// disallowed origins are answered with 403 by the cors middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))

	router.Static(cfg.Assets.URLPrefix, svc.Assets.Dir())

	chatHandler := NewChatHandler(svc.Chats, svc.Assets)
	generateHandler := NewGenerateHandler(svc.Text, svc.Images)
	assetHandler := NewAssetHandler(svc.Signer, svc.Assets, cfg.Assets.MaxUpload)

	api := router.Group("/api")
	{
		api.GET("/health", health(cfg.Server))
		api.POST("/assets", assetHandler.Upload)

		authed := api.Group("", svc.Auth.Middleware())
		authed.GET("/upload", assetHandler.UploadAuth)

		generate := authed.Group("")
		if cfg.RateLimit.Enabled {
			generate.Use(NewRateLimiter(cfg.RateLimit).Middleware())
		}
		generate.POST("/generate-text", generateHandler.GenerateText)
		generate.POST("/generate-image", generateHandler.GenerateImage)

		authed.POST("/chats", chatHandler.CreateChat)
		authed.GET("/userchats", chatHandler.ListChats)
		authed.GET("/chats/:id", chatHandler.GetChat)
		authed.PUT("/chats/:id", chatHandler.AppendTurns)
		authed.GET("/chats/:id/export", chatHandler.ExportChat)
	}

	return router
}

func health(cfg config.ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, model.HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now(),
			Environment: cfg.Environment,
			Domain:      cfg.Domain,
			Port:        cfg.Port,
			Server:      "mygpt-backend",
			Version:     Version,
		})
	}
}
