// SPDX-License-Identifier: MIT

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	ownerIDKey   ctxKey = "owner_id"
	streamIDKey  ctxKey = "stream_id"
)

// ContextWithRequestID stores the provided HTTP request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithOwnerID stores the requesting principal's identifier in the context.
func ContextWithOwnerID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ownerIDKey, id)
}

// ContextWithStreamID stores the streaming request's identifier in the context.
func ContextWithStreamID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, streamIDKey, id)
}

// RequestIDFromContext extracts the HTTP request ID from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// OwnerIDFromContext extracts the principal identifier from context if present.
func OwnerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ownerIDKey).(string); ok {
		return v
	}
	return ""
}

// StreamIDFromContext extracts the streaming request ID from context if present.
func StreamIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(streamIDKey).(string); ok {
		return v
	}
	return ""
}

// WithContext enriches the supplied logger with correlation fields from context.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	if rid := RequestIDFromContext(ctx); rid != "" {
		builder = builder.Str("request_id", rid)
		added = true
	}
	if oid := OwnerIDFromContext(ctx); oid != "" {
		builder = builder.Str("owner_id", oid)
		added = true
	}
	if sid := StreamIDFromContext(ctx); sid != "" {
		builder = builder.Str("stream_id", sid)
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}
