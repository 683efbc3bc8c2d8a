package inference

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/eleven-am/signstream/internal/transport"
)

// GRPCServer serves the Detect stream with the same responder as the
// websocket handler.
type GRPCServer struct {
	responder *Responder
	token     string
	logger    *slog.Logger
}

// NewGRPCServer builds the Detect service. A non-empty token must be
// presented by clients as a bearer authorization header.
func NewGRPCServer(responder *Responder, token string, logger *slog.Logger) *GRPCServer {
	return &GRPCServer{
		responder: responder,
		token:     token,
		logger:    logger.With("component", "mock-grpc"),
	}
}

func (s *GRPCServer) Register(server *grpc.Server) {
	transport.RegisterInferenceServer(server, s)
}

func (s *GRPCServer) Detect(stream grpc.ServerStream) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	if err := s.authorize(md); err != nil {
		return err
	}
	if err := transport.AcceptStream(stream); err != nil {
		return err
	}

	clientID := first(md, "x-client-id")
	s.logger.Info("stream opened", "client_id", clientID)
	defer s.logger.Info("stream closed", "client_id", clientID)

	for {
		in := &structpb.Struct{}
		if err := stream.RecvMsg(in); err != nil {
			return nil
		}

		data, err := transport.StructToJSON(in)
		if err != nil {
			s.logger.Debug("unreadable frame", "error", err)
			continue
		}

		reply, _ := s.responder.Respond(data)
		out, err := transport.JSONToStruct(reply)
		if err != nil {
			return err
		}
		if err := stream.SendMsg(out); err != nil {
			return err
		}
	}
}

func (s *GRPCServer) authorize(md metadata.MD) error {
	if s.token == "" {
		return nil
	}
	if first(md, "authorization") != "Bearer "+s.token {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
