// Package local answers Interests from a storage.Store in-process. It stands
// in for the network when a node fetches from its own cache or in tests.
package local

import (
	"context"

	"xdao.co/svs/packet"
	"xdao.co/svs/storage"
	"xdao.co/svs/transport"
)

// Client is a transport.Client backed by a Store. Missing names are
// reported as a no-route Nack, which is what a forwarder does for a name
// nobody serves.
type Client struct {
	Store storage.Store
}

var _ transport.Client = (*Client)(nil)

func New(s storage.Store) *Client { return &Client{Store: s} }

func (c *Client) Express(ctx context.Context, interest packet.Interest) transport.Result {
	if err := ctx.Err(); err != nil {
		return transport.FromContext(err)
	}
	if c == nil || c.Store == nil {
		return transport.Failed(transport.ErrNoClient)
	}
	raw, err := c.Store.Get(interest.Name)
	if err != nil {
		if storage.IsNotFound(err) {
			return transport.Nacked(transport.NackNoRoute)
		}
		return transport.Failed(err)
	}
	return transport.Data(raw)
}
