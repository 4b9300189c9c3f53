package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "client_ua"
	ctxKeyPrincipal contextKey = "principal"
)

// ContextWithIPAddress adds the client IP to ctx for upload logging.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the User-Agent to ctx for upload logging.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ContextWithPrincipal records who is performing the request.
func ContextWithPrincipal(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, name)
}

// GetIPAddressFromContext extracts the client IP from ctx.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// GetUserAgentFromContext extracts the User-Agent from ctx.
func GetUserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// GetPrincipalFromContext returns the principal name, or "anonymous".
func GetPrincipalFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyPrincipal).(string); ok && v != "" {
		return v
	}
	return "anonymous"
}

// requestAttrs returns slog key/value pairs describing the caller.
func requestAttrs(ctx context.Context) []any {
	attrs := []any{"principal", GetPrincipalFromContext(ctx)}
	if ip := GetIPAddressFromContext(ctx); ip != "" {
		attrs = append(attrs, "ip", ip)
	}
	if ua := GetUserAgentFromContext(ctx); ua != "" {
		attrs = append(attrs, "user_agent", ua)
	}
	return attrs
}
