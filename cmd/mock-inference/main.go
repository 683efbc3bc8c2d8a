package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/eleven-am/signstream/internal/inference"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	wsAddr := getEnv("MOCK_WS_ADDR", ":8081")
	grpcAddr := getEnv("MOCK_GRPC_ADDR", ":50051")
	redisAddr := os.Getenv("MOCK_REDIS_ADDR")

	responder := inference.NewResponder(inference.Config{
		Letters:   splitList(os.Getenv("MOCK_LETTERS")),
		Sentences: splitList(os.Getenv("MOCK_SENTENCES")),
		Repeat:    getEnvInt("MOCK_REPEAT", 3),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	inference.NewWSHandler(responder, logger).RegisterRoutes(e)

	go func() {
		logger.Info("websocket listening", "addr", wsAddr)
		if err := e.Start(wsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("websocket server error", "error", err)
			stop()
		}
	}()

	grpcServer := grpc.NewServer()
	inference.NewGRPCServer(responder, os.Getenv("MOCK_TOKEN"), logger).Register(grpcServer)

	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logger.Error("grpc listen failed", "addr", grpcAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("grpc listening", "addr", grpcAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", "error", err)
		}
	}()

	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer client.Close()

		worker := inference.NewRedisWorker(client, responder, os.Getenv("MOCK_REDIS_CHANNEL"), logger)
		go func() {
			if err := worker.Run(ctx, nil); err != nil {
				logger.Error("redis worker stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = e.Shutdown(shutdownCtx)
	grpcServer.Stop()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
