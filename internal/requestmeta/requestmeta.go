// Package requestmeta carries per-request caller metadata (actor, client IP,
// user agent) through context so services stay transport-agnostic.
package requestmeta

import "context"

type actorKey struct{}
type clientIPKey struct{}
type userAgentKey struct{}

// WithActor records the authenticated administrator performing the request.
func WithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// Actor returns the acting administrator, if any. System-initiated work has
// no actor.
func Actor(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(actorKey{}).(int64)
	return id, ok
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIP(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPKey{}).(string)
	return ip, ok && ip != ""
}

func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, ua)
}

func UserAgent(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey{}).(string)
	return ua
}
