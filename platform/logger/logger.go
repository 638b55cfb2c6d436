// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// ConversationIDKey is the context key for the conversation being processed
	ConversationIDKey contextKey = "conversation_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger writing to w. Tests use it with io.Discard.
func NewWithWriter(env string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewWithWriter("production", io.Discard)
}

// WithContext returns a logger with request_id and conversation_id extracted from ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}
	if conversationID, ok := ctx.Value(ConversationIDKey).(string); ok && conversationID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("conversation_id", conversationID))}
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.With(slog.String("request_id", requestID))}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}

// Classification logs the outcome of an interest classification.
func (l *Logger) Classification(conversationID, mode string, confidence int, tier string) {
	l.Debug("lead_classification",
		slog.String("conversation_id", conversationID),
		slog.String("mode", mode),
		slog.Int("confidence", confidence),
		slog.String("tier", tier),
	)
}

// RoutingFallback records that no project or region matched and the default property was used.
func (l *Logger) RoutingFallback(projectInterest, cityInterest, defaultKey string) {
	l.Info("lead_routing_fallback",
		slog.String("project_interest", projectInterest),
		slog.String("city_interest", cityInterest),
		slog.String("property_key", defaultKey),
	)
}

// LeadDispatch logs a per-property CRM dispatch result. Failures log at error level.
func (l *Logger) LeadDispatch(propertyKey, outcome, errorKind string, err error) {
	if err == nil {
		l.Info("lead_dispatch",
			slog.String("property_key", propertyKey),
			slog.String("outcome", outcome),
		)
		return
	}
	l.Error("lead_dispatch",
		slog.String("property_key", propertyKey),
		slog.String("outcome", outcome),
		slog.String("error_kind", errorKind),
		slog.String("error", err.Error()),
	)
}
