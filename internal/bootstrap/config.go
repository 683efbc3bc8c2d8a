package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/eleven-am/signstream/internal/detection"
	"github.com/eleven-am/signstream/internal/frame"
	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/transport"
)

const (
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
	TransportGRPC      = "grpc"

	SourceSpool  = "spool"
	SourceCamera = "camera"
	SourceRedis  = "redis"

	CadenceInterval = "interval"
	CadencePaint    = "paint"
)

type Config struct {
	ViewerAddr string
	LogLevel   string

	SamplingInterval time.Duration
	MaxResults       int
	ConfidenceDelta  float64
	InitialMode      mode.Mode
	Cadence          string
	ReadyTimeout     time.Duration
	AutoStart        bool
	NoticeRate       float64

	Transport         string
	ClientID          string
	InferenceURL      string
	InferenceGRPCAddr string
	InferenceToken    string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisFrameChannel string
	RedisFrameKey     string
	FrameMaxAge       time.Duration

	Source       string
	SpoolDir     string
	CameraDevice string
}

// LoadConfig reads the environment, after loading a .env file if one
// exists in the working directory.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	clientID := getEnv("CLIENT_ID", uuid.NewString())

	cfg := &Config{
		ViewerAddr: getEnv("VIEWER_ADDR", ":8090"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		SamplingInterval: time.Duration(getEnvInt("SAMPLING_INTERVAL_MS", 100)) * time.Millisecond,
		MaxResults:       getEnvInt("MAX_RESULTS", detection.DefaultMaxResults),
		ConfidenceDelta:  getEnvFloat("CONFIDENCE_DELTA", detection.DefaultConfidenceDelta),
		InitialMode:      mode.Mode(strings.ToLower(getEnv("INITIAL_MODE", string(mode.ModeLetter)))),
		Cadence:          getEnv("CADENCE", CadenceInterval),
		ReadyTimeout:     time.Duration(getEnvInt("READY_TIMEOUT_MS", 2000)) * time.Millisecond,
		AutoStart:        getEnvBool("AUTO_START", false),
		NoticeRate:       getEnvFloat("NOTICE_RATE_PER_SEC", 1),

		Transport:         getEnv("TRANSPORT", TransportWebSocket),
		ClientID:          clientID,
		InferenceURL:      getEnv("INFERENCE_URL", "ws://localhost:8081/ws"),
		InferenceGRPCAddr: getEnv("INFERENCE_GRPC_ADDR", "localhost:50051"),
		InferenceToken:    getEnv("INFERENCE_TOKEN", ""),

		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		RedisFrameChannel: getEnv("REDIS_FRAME_CHANNEL", transport.DefaultFrameChannel),
		RedisFrameKey:     getEnv("REDIS_FRAME_KEY", frame.FrameKey(clientID)),
		FrameMaxAge:       time.Duration(getEnvInt("FRAME_MAX_AGE_MS", 2000)) * time.Millisecond,

		Source:       getEnv("SOURCE", SourceSpool),
		SpoolDir:     getEnv("SPOOL_DIR", "./frames"),
		CameraDevice: getEnv("CAMERA_DEVICE", "0"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SamplingInterval <= 0 {
		return fmt.Errorf("SAMPLING_INTERVAL_MS must be positive, got %s", c.SamplingInterval)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("MAX_RESULTS must be positive, got %d", c.MaxResults)
	}
	if c.ConfidenceDelta <= 0 || c.ConfidenceDelta > 1 {
		return fmt.Errorf("CONFIDENCE_DELTA must be in (0,1], got %g", c.ConfidenceDelta)
	}
	if !c.InitialMode.Valid() {
		return fmt.Errorf("INITIAL_MODE: unknown mode %q", c.InitialMode)
	}
	if c.ReadyTimeout <= 0 {
		return fmt.Errorf("READY_TIMEOUT_MS must be positive, got %s", c.ReadyTimeout)
	}
	if c.NoticeRate <= 0 {
		return fmt.Errorf("NOTICE_RATE_PER_SEC must be positive, got %g", c.NoticeRate)
	}

	switch c.Transport {
	case TransportWebSocket:
		if c.InferenceURL == "" {
			return errors.New("INFERENCE_URL is required for the websocket transport")
		}
	case TransportGRPC:
		if c.InferenceGRPCAddr == "" {
			return errors.New("INFERENCE_GRPC_ADDR is required for the grpc transport")
		}
	case TransportRedis:
	default:
		return fmt.Errorf("TRANSPORT: unknown transport %q", c.Transport)
	}

	switch c.Source {
	case SourceSpool:
		if c.SpoolDir == "" {
			return errors.New("SPOOL_DIR is required for the spool source")
		}
	case SourceCamera, SourceRedis:
	default:
		return fmt.Errorf("SOURCE: unknown source %q", c.Source)
	}

	switch c.Cadence {
	case CadenceInterval, CadencePaint:
	default:
		return fmt.Errorf("CADENCE: unknown cadence %q", c.Cadence)
	}
	if c.Cadence == CadencePaint && c.Source == SourceRedis {
		return errors.New("CADENCE=paint needs a source that reports paints (spool or camera)")
	}

	return nil
}

// UsesRedis reports whether any configured component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Transport == TransportRedis || c.Source == SourceRedis
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
