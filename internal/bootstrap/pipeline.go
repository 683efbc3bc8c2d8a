package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/eleven-am/signstream/internal/camera"
	"github.com/eleven-am/signstream/internal/detection"
	"github.com/eleven-am/signstream/internal/frame"
	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/overlay"
	"github.com/eleven-am/signstream/internal/pipeline"
	"github.com/eleven-am/signstream/internal/transport"
	"github.com/eleven-am/signstream/internal/viewer"
)

const noticeBurst = 3

func ProvideModeController(cfg *Config) *mode.Controller {
	return mode.NewController(cfg.InitialMode)
}

func ProvideFrameSource(cfg *Config, redisClient *redis.Client, logger *slog.Logger) (frame.Source, error) {
	switch cfg.Source {
	case SourceSpool:
		return frame.NewSpoolSource(frame.SpoolConfig{
			Dir:    cfg.SpoolDir,
			Logger: logger,
		}), nil
	case SourceCamera:
		return camera.New(camera.Config{
			Device: cfg.CameraDevice,
			Logger: logger,
		}), nil
	case SourceRedis:
		store := frame.NewRedisStore(redisClient, cfg.RedisFrameKey, 0, 0)
		return frame.NewRedisSource(store, cfg.FrameMaxAge), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

func ProvideCadence(cfg *Config, src frame.Source) (frame.Cadence, error) {
	return frame.NewCadence(cfg.Cadence, cfg.SamplingInterval, src)
}

func ProvideChannel(cfg *Config, redisClient *redis.Client, logger *slog.Logger) (transport.Channel, error) {
	switch cfg.Transport {
	case TransportWebSocket:
		return transport.NewWSChannel(transport.WSConfig{
			URL:      cfg.InferenceURL,
			ClientID: cfg.ClientID,
			Logger:   logger,
		}), nil
	case TransportRedis:
		return transport.NewRedisChannel(redisClient, transport.RedisConfig{
			FrameChannel: cfg.RedisFrameChannel,
			ClientID:     cfg.ClientID,
			Logger:       logger,
		}), nil
	case TransportGRPC:
		return transport.NewGRPCChannel(transport.GRPCConfig{
			Address:  cfg.InferenceGRPCAddr,
			ClientID: cfg.ClientID,
			Token:    cfg.InferenceToken,
			Logger:   logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func ProvideHub(logger *slog.Logger) *viewer.Hub {
	return viewer.NewHub(logger)
}

// ProvideSink sends every overlay event to the log and to connected viewers.
// Notices are rate limited so a dead transport does not flood either.
func ProvideSink(cfg *Config, hub *viewer.Hub, logger *slog.Logger) overlay.Sink {
	fanout := overlay.Fanout{overlay.NewLogSink(logger), hub}
	return overlay.NewThrottled(fanout, cfg.NoticeRate, noticeBurst)
}

type CoordinatorParams struct {
	fx.In

	Config  *Config
	Source  frame.Source
	Cadence frame.Cadence
	Channel transport.Channel
	Modes   *mode.Controller
	Sink    overlay.Sink
	Logger  *slog.Logger
}

func ProvideCoordinator(p CoordinatorParams) (*pipeline.Coordinator, error) {
	return pipeline.NewCoordinator(pipeline.Config{
		Source:       p.Source,
		Cadence:      p.Cadence,
		Channel:      p.Channel,
		Modes:        p.Modes,
		Dedup:        detection.NewDeduplicator(p.Config.ConfidenceDelta),
		Buffer:       detection.NewBuffer(p.Config.MaxResults),
		Sink:         p.Sink,
		ReadyTimeout: p.Config.ReadyTimeout,
		Logger:       p.Logger,
	})
}

func RegisterPipelineLifecycle(lc fx.Lifecycle, cfg *Config, channel transport.Channel, coord *pipeline.Coordinator, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := channel.Open(ctx); err != nil {
				return fmt.Errorf("open transport: %w", err)
			}
			logger.Info("transport opened", "transport", cfg.Transport, "client_id", cfg.ClientID)

			if cfg.AutoStart {
				if err := coord.Start(ctx); err != nil {
					logger.Warn("auto start failed, waiting for a start request", "error", err)
				}
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return errors.Join(coord.Stop(), channel.Close())
		},
	})
}

var PipelineModule = fx.Options(
	fx.Provide(
		ProvideModeController,
		ProvideFrameSource,
		ProvideCadence,
		ProvideChannel,
		ProvideHub,
		ProvideSink,
		ProvideCoordinator,
	),
	fx.Invoke(RegisterPipelineLifecycle),
)
