package grpcx

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
)

// Incoming metadata keys. gRPC lowercases keys on the wire.
const (
	RequestIDMetadataKey = "x-request-id"
	TenantMetadataKey    = "fineract-platform-tenantid"
)

type callInfo struct {
	requestID string
	tenantID  string
}

type ctxKey struct{}

func withCallInfo(ctx context.Context, ci callInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, ci)
}

func callInfoFrom(ctx context.Context) callInfo {
	ci, _ := ctx.Value(ctxKey{}).(callInfo)
	return ci
}

func RequestIDFromContext(ctx context.Context) string { return callInfoFrom(ctx).requestID }

func TenantFromContext(ctx context.Context) string { return callInfoFrom(ctx).tenantID }

// readCallInfo pulls request id and tenant from incoming metadata, minting a request id
// when the caller sent none.
func readCallInfo(ctx context.Context) callInfo {
	var ci callInfo
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		ci.requestID = first(md, RequestIDMetadataKey)
		ci.tenantID = first(md, TenantMetadataKey)
	}
	if ci.requestID == "" {
		ci.requestID = uuid.NewString()
	}
	return ci
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
