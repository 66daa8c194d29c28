package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtharvSharma0077/ChatbotAI/internal/api"
	"github.com/AtharvSharma0077/ChatbotAI/internal/chat"
	"github.com/AtharvSharma0077/ChatbotAI/internal/config"
	"github.com/AtharvSharma0077/ChatbotAI/internal/db"
	"github.com/AtharvSharma0077/ChatbotAI/internal/llm"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
	}

	completer, err := llm.New(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, cfg.Temperature)
	if err != nil {
		logger.Fatal("failed to initialize completion client", zap.Error(err))
	}
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set; exchanges will report provider errors")
	}

	chatService := chat.NewService(database, completer, logger, cfg.MaxHistoryTokens)
	handler := api.NewHandler(database, chatService, logger)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.CORS(cfg.CORSOrigins, handler.Routes()),
	}

	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = srv.Shutdown(ctx)
	err = multierr.Append(err, database.Close())
	if err != nil {
		logger.Error("shutdown finished with errors", zap.Error(err))
	}
}
