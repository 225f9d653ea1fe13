package grpcledger

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/alfredjeanlab/peerledger/internal/ledger"
)

// Client is a ledger.Backend backed by a remote Ledger service.
type Client struct {
	cc     grpc.ClientConnInterface
	closer func() error
	client LedgerClient
}

// Compile-time checks.
var (
	_ ledger.Backend = (*Client)(nil)
	_ ledger.Lister  = (*Client)(nil)
)

type DialOptions struct {
	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Token is sent as a bearer token on every call when non-empty.
	Token string

	// Extra are appended to the default dial options.
	Extra []grpc.DialOption
}

// Dial creates a client for target. The connection is established lazily.
func Dial(target string, opts DialOptions) (*Client, error) {
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
	if opts.Token != "" {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(bearerToken(opts.Token)))
	}
	dialOpts = append(dialOpts, opts.Extra...)

	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial ledger %s: %w", target, err)
	}
	return &Client{cc: cc, closer: cc.Close, client: NewLedgerClient(cc)}, nil
}

// NewClient wraps an existing connection. Close does not close cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc, client: NewLedgerClient(cc)}
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	reply, err := c.client.Get(ctx, wrapperspb.String(key))
	if err != nil {
		return nil, mapRPC(err)
	}
	if len(reply.GetValue()) == 0 {
		return nil, nil
	}
	return reply.GetValue(), nil
}

func (c *Client) Put(ctx context.Context, w *ledger.SignedWrite) error {
	ctx = metadata.NewOutgoingContext(ctx, writeMetadata(w))
	_, err := c.client.Set(ctx, wrapperspb.Bytes(w.Value))
	return mapRPC(err)
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.Ping(ctx, &emptypb.Empty{})
	return mapRPC(err)
}

func (c *Client) Keys(ctx context.Context, prefix string) ([]string, error) {
	reply, err := c.client.Keys(ctx, wrapperspb.String(prefix))
	if err != nil {
		return nil, mapRPC(err)
	}
	keys := make([]string, 0, len(reply.GetValues()))
	for _, v := range reply.GetValues() {
		keys = append(keys, v.GetStringValue())
	}
	return keys, nil
}

func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}
