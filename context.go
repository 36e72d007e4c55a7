package authcore

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type actorIDContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The service
// records it on audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for audit
// events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithActorID attaches the authenticated caller's account id to ctx.
// Audit events record it as the actor when it differs from the subject.
func WithActorID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, actorIDContextKey{}, accountID)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func actorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	actorID, _ := ctx.Value(actorIDContextKey{}).(string)
	return actorID
}
