package grpcstore

import (
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/svs/storage"
)

// mapErr converts a storage error into a gRPC status (server side).
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidName), errors.Is(err, storage.ErrInvalidPacket):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrNameMismatch):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, storage.ErrImmutable):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// mapRPC converts a gRPC status back into a storage error (client side).
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		if strings.HasPrefix(st.Message(), storage.ErrInvalidPacket.Error()) {
			return storage.ErrInvalidPacket
		}
		return storage.ErrInvalidName
	case codes.DataLoss:
		return storage.ErrNameMismatch
	case codes.AlreadyExists:
		return storage.ErrImmutable
	default:
		// Best-effort: if the server sent a known storage error message, preserve it.
		switch st.Message() {
		case storage.ErrNotFound.Error():
			return storage.ErrNotFound
		case storage.ErrNameMismatch.Error():
			return storage.ErrNameMismatch
		case storage.ErrImmutable.Error():
			return storage.ErrImmutable
		default:
			return err
		}
	}
}
