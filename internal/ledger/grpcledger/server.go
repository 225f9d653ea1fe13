// Package grpcledger carries the ledger over gRPC. The server fronts any
// ledger.Backend and checks every write's signature before storing it; the
// client is itself a ledger.Backend, so a remote ledger plugs into the same
// access paths as a local one.
package grpcledger

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/alfredjeanlab/peerledger/internal/ledger"
)

// Metadata keys carried on Set. The -bin suffix makes gRPC base64 the
// values on the wire.
const (
	mdKey       = "x-ledger-key-bin"
	mdWriter    = "x-ledger-writer"
	mdScheme    = "x-ledger-scheme"
	mdPublicKey = "x-ledger-public-key-bin"
	mdSignature = "x-ledger-signature-bin"
)

// Server exposes a ledger.Backend over the Ledger gRPC service.
type Server struct {
	UnimplementedLedgerServer
	Backend ledger.Backend

	// Verify checks a write before it is stored. Nil accepts every write.
	Verify func(*ledger.SignedWrite) error
}

// NewGRPCServer returns a grpc.Server with the Ledger service registered and
// the logging and recovery interceptors installed.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(RecoveryInterceptor, LoggingInterceptor),
	}, opts...)
	gs := grpc.NewServer(opts...)
	RegisterLedgerServer(gs, srv)
	return gs
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if in.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}
	b, err := s.Backend.Get(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Set(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	w, err := writeFromMetadata(ctx, in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if s.Verify != nil {
		if err := s.Verify(w); err != nil {
			return nil, toStatus(err)
		}
	}
	if err := s.Backend.Put(ctx, w); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	if err := s.Backend.Ping(ctx); err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(true), nil
}

func (s *Server) Keys(ctx context.Context, in *wrapperspb.StringValue) (*structpb.ListValue, error) {
	lister, ok := s.Backend.(ledger.Lister)
	if !ok {
		return nil, toStatus(ledger.ErrListUnsupported)
	}
	keys, err := lister.Keys(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(keys))}
	for _, k := range keys {
		out.Values = append(out.Values, structpb.NewStringValue(k))
	}
	return out, nil
}

func writeFromMetadata(ctx context.Context, value []byte) (*ledger.SignedWrite, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, errors.New("missing metadata")
	}
	first := func(k string) string {
		if v := md.Get(k); len(v) > 0 {
			return v[0]
		}
		return ""
	}
	key := first(mdKey)
	if key == "" {
		return nil, fmt.Errorf("missing %s", mdKey)
	}
	return &ledger.SignedWrite{
		Key:       key,
		Value:     value,
		Writer:    first(mdWriter),
		Scheme:    first(mdScheme),
		PublicKey: []byte(first(mdPublicKey)),
		Signature: []byte(first(mdSignature)),
	}, nil
}

func writeMetadata(w *ledger.SignedWrite) metadata.MD {
	return metadata.Pairs(
		mdKey, w.Key,
		mdWriter, w.Writer,
		mdScheme, w.Scheme,
		mdPublicKey, string(w.PublicKey),
		mdSignature, string(w.Signature),
	)
}
