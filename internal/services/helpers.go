package services

import (
	"context"
	"strings"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func trimmed(value string) string {
	return strings.TrimSpace(value)
}
