package grpcledger

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"path"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ledgerKey returns the key an RPC touches: the request value for Get and
// Keys, the key metadata for Set, "" for Ping.
func ledgerKey(ctx context.Context, req any) string {
	if s, ok := req.(*wrapperspb.StringValue); ok {
		return s.GetValue()
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(mdKey); len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// LoggingInterceptor logs each ledger RPC with its key. Payloads are never
// logged; they are ciphertext anyway but can be large.
func LoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	began := time.Now()
	resp, err := handler(ctx, req)

	attrs := []any{
		"rpc", path.Base(info.FullMethod),
		"key", ledgerKey(ctx, req),
		"took", time.Since(began),
	}
	switch code := status.Code(err); code {
	case codes.OK:
		slog.Debug("ledger rpc", attrs...)
	case codes.NotFound:
		// Misses are routine: refresh reads the index before it exists.
		slog.Debug("ledger rpc", append(attrs, "code", code.String())...)
	default:
		slog.Warn("ledger rpc failed", append(attrs, "code", code.String(), "err", err)...)
	}
	return resp, err
}

// RecoveryInterceptor turns a panicking backend into codes.Internal.
func RecoveryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		slog.Error("ledger rpc panicked",
			"rpc", path.Base(info.FullMethod),
			"panic", r,
			"stack", string(debug.Stack()))
		resp, err = nil, status.Error(codes.Internal, "ledger backend failure")
	}()
	return handler(ctx, req)
}

// AuthInterceptor requires "authorization: Bearer <token>" on every RPC but
// Ping. An empty token turns the check off.
func AuthInterceptor(token string) grpc.UnaryServerInterceptor {
	want := []byte(token)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token == "" || info.FullMethod == pingMethod {
			return handler(ctx, req)
		}
		got, err := bearerFrom(ctx)
		if err != nil {
			return nil, err
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			return nil, status.Error(codes.Unauthenticated, "ledger token rejected")
		}
		return handler(ctx, req)
	}
}

func bearerFrom(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return "", status.Error(codes.Unauthenticated, "ledger token required")
	}
	tok, ok := strings.CutPrefix(vals[0], "Bearer ")
	if !ok {
		return "", status.Error(codes.Unauthenticated, "authorization must use the Bearer scheme")
	}
	return tok, nil
}

// bearerToken is the client half of AuthInterceptor.
type bearerToken string

func (t bearerToken) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(t)}, nil
}

// Plaintext is allowed; the ledger service normally sits on a private network.
func (bearerToken) RequireTransportSecurity() bool { return false }
