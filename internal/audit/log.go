// Package audit writes who-did-what entries into the shared JSON log stream.
package audit

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"coursedesk.org/internal/auth"
	"coursedesk.org/internal/obs"
)

type requestIDKey struct{}

// ErrNoEvent is returned for a blank event name.
var ErrNoEvent = errors.New("audit: event name is required")

// WithRequestID tags ctx with the request id; blank ids leave ctx untouched.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id = strings.TrimSpace(id); id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// LogEvent emits an audit entry. The acting organization and user come from
// the principal in ctx, never from fields.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	if event = strings.TrimSpace(event); event == "" {
		return ErrNoEvent
	}
	payload := maps.Clone(fields)
	if payload == nil {
		payload = map[string]any{}
	}
	entry := map[string]any{
		"ts":     time.Now().UTC().Format(time.RFC3339Nano),
		"type":   "audit",
		"event":  event,
		"fields": payload,
	}
	if id := RequestIDFromContext(ctx); id != "" {
		entry["request_id"] = id
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		entry["organization_id"] = p.OrganizationID
		entry["organization_code"] = p.OrganizationCode
		if p.UserID != "" {
			entry["user_id"] = p.UserID
		}
		if p.Role != "" {
			entry["role"] = p.Role
		}
	}
	obs.Emit(entry)
	return nil
}
