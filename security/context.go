package security

import (
	"context"
)

// ClientInfo identifies the caller for rate limiting, IP filtering, and audit
// records. It is carried on the request context by the transport layer.
type ClientInfo struct {
	// ID is the rate-limit identity, typically an API key or account ID.
	ID string
	// IP is the caller's remote address.
	IP string
}

type clientInfoKey struct{}

// WithClientInfo returns a context carrying the caller's identity.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

// ClientFromContext extracts the caller's identity. A context without client
// info yields the zero value; the filter then skips IP and rate checks that
// have nothing to key on.
func ClientFromContext(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientInfoKey{}).(ClientInfo)
	return info
}
