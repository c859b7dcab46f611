package core

import "context"

type contextKey string

const (
	ctxKeyClientIP  contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "user_agent"
	ctxKeyChannel   contextKey = "channel"
)

// ContextWithClient records the submitting client for registration logs.
func ContextWithClient(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyClientIP, ip)
	return context.WithValue(ctx, ctxKeyUserAgent, userAgent)
}

// ContextWithChannel records the entry point ("http", "cli") of a request.
func ContextWithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ctxKeyChannel, channel)
}

// ClientIPFromContext returns the client IP, or "".
func ClientIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyClientIP).(string); ok {
		return v
	}
	return ""
}

// UserAgentFromContext returns the client User-Agent, or "".
func UserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// ChannelFromContext returns the entry point, or "".
func ChannelFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyChannel).(string); ok {
		return v
	}
	return ""
}

// clientAttrs returns log attributes describing the submitter.
func clientAttrs(ctx context.Context) []any {
	var attrs []any
	if ip := ClientIPFromContext(ctx); ip != "" {
		attrs = append(attrs, "client_ip", ip)
	}
	if ch := ChannelFromContext(ctx); ch != "" {
		attrs = append(attrs, "channel", ch)
	}
	return attrs
}
