/*
Mockgateway runs a fake Prism gateway that speaks the chat-completion wire
protocol. The requested model picks the behaviour: mock/echo (the default),
mock/thinking, mock/tools, mock/error-401, mock/error-402, mock/error-403,
mock/band-denied, mock/error-429, mock/error-500, mock/malformed-stream,
mock/stream-error and mock/truncated-stream.

Usage:

	mockgateway [flags]

Flags:

	-port string
		Listen port. Defaults to mock.port from the configuration.
	-delay duration
		Pause between streamed chunks.
	-api-key string
		Bearer token required from clients. Empty disables auth.

Configuration is read like the prism CLI: prism.yaml, .env and PRISM_*
variables. The server shuts down gracefully on SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/nulzo/prism-go/internal/config"
	"github.com/nulzo/prism-go/internal/mockgateway"
	"github.com/nulzo/prism-go/internal/platform/logger"
	"github.com/nulzo/prism-go/internal/platform/otel"
	"github.com/nulzo/prism-go/pkg/prism"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Get().Fatal("failed to load config", zap.Error(err))
	}

	var (
		port   = flag.String("port", cfg.Mock.Port, "Listen port")
		delay  = flag.Duration("delay", 0, "Pause between streamed chunks")
		apiKey = flag.String("api-key", cfg.Mock.APIKey, "Bearer token required from clients (empty = no auth)")
	)
	flag.Parse()

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	log := logger.Initialize(logCfg)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdown, err := otel.InitTracer(ctx, otel.Config{
			ServiceName:    "prism-mockgateway",
			ServiceVersion: prism.Version,
		}, log)
		if err != nil {
			log.Fatal("failed to init tracer", zap.Error(err))
		}
		defer func() {
			_ = shutdown(context.Background())
		}()
	}

	srv := mockgateway.New(mockgateway.Config{
		Env:         cfg.Mock.Env,
		APIKey:      *apiKey,
		ChunkDelay:  *delay,
		Tracing:     cfg.Tracing.Enabled,
		ServiceName: "prism-mockgateway",
	}, log)

	if err := srv.ListenAndServe(ctx, ":"+*port); err != nil {
		log.Fatal("mock gateway failed", zap.Error(err))
	}
}
