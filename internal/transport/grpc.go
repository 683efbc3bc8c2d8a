package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/eleven-am/signstream/internal/frame"
	"github.com/eleven-am/signstream/internal/shared"
)

const (
	inferenceServiceName = "signstream.v1.Inference"
	detectMethod         = "/" + inferenceServiceName + "/Detect"

	defaultMaxMessageSize = 16 * 1024 * 1024

	acceptedHeader = "x-stream-accepted"
)

var detectStreamDesc = grpc.StreamDesc{
	StreamName:    "Detect",
	ServerStreams: true,
	ClientStreams: true,
}

// InferenceServer is the server side of the Detect stream. Frames and
// results travel as structpb.Struct messages carrying the JSON envelopes.
type InferenceServer interface {
	Detect(stream grpc.ServerStream) error
}

var InferenceServiceDesc = grpc.ServiceDesc{
	ServiceName: inferenceServiceName,
	HandlerType: (*InferenceServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName: "Detect",
		Handler: func(srv any, stream grpc.ServerStream) error {
			return srv.(InferenceServer).Detect(stream)
		},
		ServerStreams: true,
		ClientStreams: true,
	}},
}

func RegisterInferenceServer(s *grpc.Server, srv InferenceServer) {
	s.RegisterService(&InferenceServiceDesc, srv)
}

// AcceptStream sends the response headers that mark a Detect stream as
// accepted. Servers call it once the caller is authorized and before the
// first RecvMsg; clients stay in connecting until it arrives.
func AcceptStream(stream grpc.ServerStream) error {
	return stream.SendHeader(metadata.Pairs(acceptedHeader, "true"))
}

// awaitAccepted blocks until the server accepts the stream or the RPC ends.
func awaitAccepted(stream grpc.ClientStream) error {
	md, err := stream.Header()
	if err != nil {
		return err
	}
	if len(md.Get(acceptedHeader)) > 0 {
		return nil
	}
	if err := stream.RecvMsg(&structpb.Struct{}); err != nil {
		return err
	}
	return errors.New("stream not accepted by server")
}

type GRPCConfig struct {
	Address        string
	ClientID       string
	Token          string
	MaxMessageSize int
	QueueSize      int
	Backoff        shared.BackoffConfig
	DialOptions    []grpc.DialOption
	Logger         *slog.Logger
}

// GRPCChannel keeps one bidirectional Detect stream open, reopening it with
// backoff when it fails.
type GRPCChannel struct {
	dispatcher

	cfg  GRPCConfig
	out  outbox
	conn *grpc.ClientConn

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func NewGRPCChannel(cfg GRPCConfig) *GRPCChannel {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	cfg.Backoff = cfg.Backoff.Normalize()

	return &GRPCChannel{
		dispatcher: dispatcher{logger: cfg.Logger.With("component", "grpc-channel", "address", cfg.Address)},
		cfg:        cfg,
		out:        newOutbox(cfg.QueueSize),
	}
}

func (c *GRPCChannel) Open(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return shared.ErrClosed
	}
	if c.cancel != nil {
		return nil
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(c.cfg.MaxMessageSize),
			grpc.MaxCallSendMsgSize(c.cfg.MaxMessageSize),
		),
	}
	opts = append(opts, c.cfg.DialOptions...)

	conn, err := grpc.NewClient(c.cfg.Address, opts...)
	if err != nil {
		return fmt.Errorf("dial inference service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
	return nil
}

func (c *GRPCChannel) Send(_ context.Context, unit frame.Unit) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return c.failSend(shared.ErrClosed)
	}
	if c.State() != StateConnected {
		return c.failSend(errOffline)
	}

	data, err := EncodeFrame(c.cfg.ClientID, "", unit)
	if err != nil {
		return c.failSend(err)
	}
	if err := c.out.push(data); err != nil {
		return c.failSend(err)
	}
	c.sent.Add(1)
	return nil
}

func (c *GRPCChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	done := c.done
	conn := c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.setState(StateDisconnected)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *GRPCChannel) outgoingContext(ctx context.Context) context.Context {
	md := metadata.MD{}
	if c.cfg.Token != "" {
		md.Set("authorization", fmt.Sprintf("Bearer %s", c.cfg.Token))
	}
	if c.cfg.ClientID != "" {
		md.Set("x-client-id", c.cfg.ClientID)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCChannel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	backoff := c.cfg.Backoff.Initial
	attempts := 0

	for {
		c.setState(StateConnecting)
		streamCtx, cancel := context.WithCancel(c.outgoingContext(ctx))
		stream, err := c.conn.NewStream(streamCtx, &detectStreamDesc, detectMethod)
		if err == nil {
			err = awaitAccepted(stream)
		}
		if err == nil {
			backoff = c.cfg.Backoff.Initial
			attempts = 0
			if n := c.out.drain(); n > 0 {
				c.logger.Debug("dropped stale frames", "count", n)
			}
			c.setState(StateConnected)
			err = c.serve(streamCtx, cancel, stream)
		}
		cancel()
		c.setState(StateDisconnected)

		if ctx.Err() != nil {
			return
		}

		attempts++
		if c.cfg.Backoff.MaxAttempts > 0 && attempts >= c.cfg.Backoff.MaxAttempts {
			c.logger.Error("giving up on inference stream", "attempts", attempts, "error", err)
			return
		}
		c.logger.Warn("inference stream failed", "attempt", attempts, "retry_in", backoff, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = c.cfg.Backoff.Next(backoff)
	}
}

func (c *GRPCChannel) serve(ctx context.Context, cancel context.CancelFunc, stream grpc.ClientStream) error {
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		defer cancel()
		c.writeLoop(ctx, stream)
	}()

	err := c.readLoop(stream)
	cancel()
	<-writeDone
	return err
}

func (c *GRPCChannel) writeLoop(ctx context.Context, stream grpc.ClientStream) {
	for {
		select {
		case <-ctx.Done():
			_ = stream.CloseSend()
			return
		case data := <-c.out.ch:
			msg, err := JSONToStruct(data)
			if err != nil {
				c.sendFailures.Add(1)
				c.logger.Error("encode frame struct", "error", err)
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				c.sendFailures.Add(1)
				c.logger.Warn("stream send failed", "error", err)
				return
			}
		}
	}
}

func (c *GRPCChannel) readLoop(stream grpc.ClientStream) error {
	for {
		msg := &structpb.Struct{}
		if err := stream.RecvMsg(msg); err != nil {
			return err
		}
		data, err := StructToJSON(msg)
		if err != nil {
			c.malformed.Add(1)
			continue
		}
		c.deliver(data, time.Now())
	}
}

// JSONToStruct converts an encoded envelope into its structpb form.
func JSONToStruct(data []byte) (*structpb.Struct, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func StructToJSON(msg *structpb.Struct) ([]byte, error) {
	return json.Marshal(msg.AsMap())
}
