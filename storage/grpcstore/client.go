package grpcstore

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/svs/name"
	"xdao.co/svs/packet"
	"xdao.co/svs/storage"
)

// Client implements storage.Store over a Store gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client StoreClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ storage.Store = (*Client)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	cc, err := DialConn(target, opts)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// DialConn opens a client connection with the shared dial options. The face
// transport reuses it so both services can run against one daemon.
func DialConn(target string, opts DialOptions, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	dialOpts = append(dialOpts, extra...)

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		dialOpts = append(dialOpts, grpc.WithBlock())
	}
	return grpc.DialContext(ctx, target, dialOpts...)
}

// NewClient wraps an existing connection. Close closes cc.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewStoreClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Put(n name.Name, raw []byte) error {
	if c == nil || c.client == nil {
		return storage.ErrNotFound
	}
	// Validate locally first so obviously bad writes never reach the wire.
	if err := storage.CheckPacket(n, raw); err != nil {
		return err
	}
	expected, err := n.Key()
	if err != nil {
		return err
	}

	ctx, cancel := c.ctx()
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, NameHeader, n.String())

	reply, err := c.client.Put(ctx, wrapperspb.Bytes(raw))
	if err != nil {
		return mapRPC(err)
	}
	if reply.GetValue() != expected.String() {
		return storage.ErrNameMismatch
	}
	return nil
}

func (c *Client) Get(n name.Name) ([]byte, error) {
	if len(n) == 0 {
		return nil, storage.ErrInvalidName
	}
	if c == nil || c.client == nil {
		return nil, storage.ErrNotFound
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.String(n.String()))
	if err != nil {
		return nil, mapRPC(err)
	}
	b := reply.GetValue()
	d, err := packet.DecodeData(b)
	if err != nil || !d.Name.Equal(n) {
		return nil, storage.ErrNameMismatch
	}
	return b, nil
}

func (c *Client) Has(n name.Name) bool {
	if len(n) == 0 || c == nil || c.client == nil {
		return false
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(n.String()))
	if err != nil {
		return false
	}
	return reply.GetValue()
}

func (c *Client) ctx() (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.Timeout)
}
