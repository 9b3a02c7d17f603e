package grpcstore

import (
	"context"
	"io"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/svs/name"
	"xdao.co/svs/packet"
	"xdao.co/svs/storage"
)

// Server exposes a storage.Store over the Store gRPC service.
type Server struct {
	UnimplementedStoreServer
	Store  storage.Store
	Logger *slog.Logger
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	n, err := nameFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Store.Put(n, in.GetValue()); err != nil {
		s.logger().Debug("put rejected", "name", n.String(), "error", err)
		return nil, mapErr(err)
	}
	key, err := n.Key()
	if err != nil {
		return nil, status.Error(codes.Internal, "name key computation failed")
	}
	return wrapperspb.String(key.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	n, err := parseName(in.GetValue())
	if err != nil {
		return nil, err
	}
	b, err := s.Store.Get(n)
	if err != nil {
		return nil, mapErr(err)
	}
	// Enforce the name contract on the server side too.
	d, err := packet.DecodeData(b)
	if err != nil || !d.Name.Equal(n) {
		return nil, status.Error(codes.DataLoss, storage.ErrNameMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	_ = ctx
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	n, err := parseName(in.GetValue())
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(s.Store.Has(n)), nil
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

func nameFromContext(ctx context.Context) (name.Name, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidName.Error())
	}
	vals := md.Get(NameHeader)
	if len(vals) != 1 {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidName.Error())
	}
	return parseName(vals[0])
}

func parseName(uri string) (name.Name, error) {
	n, err := name.Parse(uri)
	if err != nil || len(n) == 0 {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidName.Error())
	}
	return n, nil
}
