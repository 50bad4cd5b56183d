package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mygpt-backend/internal/assets"
	"mygpt-backend/internal/auth"
	"mygpt-backend/internal/config"
	"mygpt-backend/internal/handler"
	"mygpt-backend/internal/model"
	"mygpt-backend/internal/service"
	"mygpt-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
)

func main() {
	var configPath, issueToken string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to the config file")
	flag.StringVar(&issueToken, "issue-token", "", "print a bearer token for the given user id and exit")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	authManager := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	if issueToken != "" {
		token, err := authManager.GenerateToken(issueToken)
		if err != nil {
			logger.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Fatalf("auth.jwt_secret (or JWT_SECRET) must be set")
	}

	ctx := context.Background()

	store := assets.NewStore(cfg.Assets.Dir, cfg.Assets.URLPrefix)
	if err := store.Init(); err != nil {
		logger.Fatalf("Failed to init asset store: %v", err)
	}

	chatService := service.NewChatService(cfg)

	var text handler.TextStreamer
	chatModel, err := model.NewTextModel(ctx, cfg)
	if err != nil {
		logger.Errorf("Text generation disabled: %v", err)
	} else {
		text = service.NewTextService(chatModel, cfg.Text)
	}

	router := setupRouter(cfg, handler.Services{
		Chats:  chatService,
		Text:   text,
		Images: service.NewImageService(cfg, store),
		Assets: store,
		Signer: assets.NewSigner(cfg.Assets.PublicKey, cfg.Assets.PrivateKey, cfg.Assets.UploadTTL),
		Auth:   authManager,
	})

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Infof("Server listening on port %d (%s)", cfg.Server.Port, cfg.Server.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")
	if err := shutdown(server, chatService, chatModel); err != nil {
		logger.Errorf("Shutdown finished with errors: %v", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

func setupRouter(cfg *config.Config, svc handler.Services) *gin.Engine {
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return handler.NewRouter(cfg, svc)
}

func shutdown(server *http.Server, chats *service.ChatService, chatModel interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result *multierror.Error
	if err := server.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http server: %w", err))
	}
	if err := chats.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("chat storage: %w", err))
	}
	// the gemini client holds a grpc connection
	if closer, ok := chatModel.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("text model: %w", err))
		}
	}
	return result.ErrorOrNil()
}
