package grpcface

import (
	"context"
	"io"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/svs/packet"
	"xdao.co/svs/storage"
)

// Server answers Interests from a Store: it is the serving side of
// cache-others mode, letting peers fetch packets this node stored.
type Server struct {
	UnimplementedFaceServer
	Store  storage.Store
	Logger *slog.Logger
}

func (s *Server) Express(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}
	interest, err := packet.DecodeInterest(in.GetValue())
	if err != nil || len(interest.Name) == 0 {
		return nil, status.Error(codes.InvalidArgument, "malformed interest")
	}

	raw, err := s.Store.Get(interest.Name)
	if err != nil {
		if storage.IsNotFound(err) {
			s.logger().Debug("no data", "name", interest.Name.String())
			return nil, status.Error(codes.NotFound, err.Error())
		}
		s.logger().Warn("store read failed", "name", interest.Name.String(), "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	s.logger().Debug("served", "name", interest.Name.String(), "bytes", len(raw))
	return wrapperspb.Bytes(raw), nil
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}
