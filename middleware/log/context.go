package logger

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	TraceIDKey  contextKey = "trace_id"
	MemberIDKey contextKey = "member_id"
)

// WithTraceID stores traceID in ctx, generating a new one when empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

func NewTraceID() string {
	return uuid.New().String()
}

// WithMemberID records the authenticated member for log correlation.
func WithMemberID(ctx context.Context, memberID string) context.Context {
	return context.WithValue(ctx, MemberIDKey, memberID)
}

func GetMemberID(ctx context.Context) string {
	memberID, _ := ctx.Value(MemberIDKey).(string)
	return memberID
}
