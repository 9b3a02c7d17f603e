// Package grpcface carries Interest/Data exchanges over gRPC. The client side
// implements transport.Client; the server side answers from a storage.Store.
package grpcface

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/svs/packet"
	"xdao.co/svs/storage/grpcstore"
	"xdao.co/svs/transport"
)

// DialOptions are shared with the store client so one daemon address serves both.
type DialOptions = grpcstore.DialOptions

// Client implements transport.Client over the Face gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client FaceClient
}

var _ transport.Client = (*Client)(nil)

func Dial(target string, opts DialOptions) (*Client, error) {
	cc, err := grpcstore.DialConn(target, opts)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection. Close closes cc.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewFaceClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Express sends interest and classifies the reply. When ctx carries no
// deadline, the interest lifetime bounds the call.
func (c *Client) Express(ctx context.Context, interest packet.Interest) transport.Result {
	if c == nil || c.client == nil {
		return transport.Failed(transport.ErrNoClient)
	}
	if err := ctx.Err(); err != nil {
		return transport.FromContext(err)
	}
	if _, ok := ctx.Deadline(); !ok && interest.Lifetime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, interest.Lifetime)
		defer cancel()
	}

	req, err := interest.Encode()
	if err != nil {
		return transport.Failed(err)
	}
	reply, err := c.client.Express(ctx, wrapperspb.Bytes(req))
	if err != nil {
		return resultFromRPC(ctx, err)
	}
	return transport.Data(reply.GetValue())
}

// resultFromRPC maps a gRPC error onto the closed result set.
func resultFromRPC(ctx context.Context, err error) transport.Result {
	st, ok := status.FromError(err)
	if !ok {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return transport.FromContext(ctxErr)
		}
		return transport.Failed(err)
	}
	switch st.Code() {
	case codes.NotFound:
		return transport.Nacked(transport.NackNoRoute)
	case codes.ResourceExhausted:
		return transport.Nacked(transport.NackCongestion)
	case codes.AlreadyExists:
		return transport.Nacked(transport.NackDuplicate)
	case codes.DeadlineExceeded:
		return transport.TimedOut()
	case codes.Canceled:
		return transport.Canceled(err)
	default:
		return transport.Failed(err)
	}
}
