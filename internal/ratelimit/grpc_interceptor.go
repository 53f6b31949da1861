// Package ratelimit provides a gRPC interceptor adapter.
package ratelimit

import (
	"context"
	"net"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// unknownPeerAddress keys calls whose peer address cannot be resolved.
const unknownPeerAddress = "unknown-peer"

// GRPCInterceptorOptions configure descriptor extraction from gRPC
// metadata.
type GRPCInterceptorOptions struct {
	// SessionMetadataKey names the metadata key carrying a session token.
	SessionMetadataKey string
	// PhoneMetadataKey optionally names a trusted metadata key carrying a
	// verified phone identifier.
	PhoneMetadataKey string
}

// UnaryRateLimitInterceptor enforces rate limits for unary gRPC calls.
// Denied calls fail with ResourceExhausted and the structured reason;
// allowed calls proceed with rate-limit response headers attached.
func UnaryRateLimitInterceptor(engine *Engine, opts GRPCInterceptorOptions) grpc.UnaryServerInterceptor {
	if opts.SessionMetadataKey == "" {
		opts.SessionMetadataKey = "x-rl-session"
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		descriptor := descriptorFromMetadata(ctx, opts)
		if descriptor.ClientIP == "" {
			// Peer address is unavailable in some in-process setups.
			// Those calls share one sentinel bucket so there is always
			// something to limit against.
			descriptor.ClientIP = unknownPeerAddress
		}
		decision, err := engine.Evaluate(ctx, descriptor)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "invalid request descriptor")
		}
		if !decision.Allowed {
			return nil, status.Error(codes.ResourceExhausted, decision.Reason)
		}
		if binding, ok := bindingWindow(decision.Usage); ok {
			_ = grpc.SetHeader(ctx, metadata.Pairs(
				"x-ratelimit-limit", strconv.FormatInt(binding.Limit, 10),
				"x-ratelimit-remaining", strconv.FormatInt(binding.Remaining, 10),
				"x-ratelimit-tier", decision.Tier.String(),
			))
		}
		return handler(ctx, req)
	}
}

func descriptorFromMetadata(ctx context.Context, opts GRPCInterceptorOptions) *EvaluateRequest {
	descriptor := &EvaluateRequest{Weight: 1}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		host, _, err := net.SplitHostPort(p.Addr.String())
		if err == nil {
			descriptor.ClientIP = host
		} else {
			descriptor.ClientIP = p.Addr.String()
		}
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return descriptor
	}
	descriptor.UserAgent = firstMetadataValue(md, "user-agent")
	descriptor.Accept = firstMetadataValue(md, "accept")
	descriptor.AcceptLanguage = firstMetadataValue(md, "accept-language")
	descriptor.AcceptEncoding = firstMetadataValue(md, "grpc-accept-encoding")
	descriptor.SessionToken = firstMetadataValue(md, opts.SessionMetadataKey)
	if opts.PhoneMetadataKey != "" {
		descriptor.Phone = firstMetadataValue(md, opts.PhoneMetadataKey)
	}
	return descriptor
}

func firstMetadataValue(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
