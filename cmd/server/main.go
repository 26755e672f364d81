package main

import (
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/clinvera/clinvera/internal/server"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	handler, err := server.NewHandlerWithOptions(server.HandlerOptions{Logger: logger})
	if err != nil {
		logger.Fatal("handler init failed", zap.Error(err))
	}

	logger.Info("listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
