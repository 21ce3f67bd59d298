package logging

import (
	"context"

	"github.com/XiaoConstantine/ace-go/pkg/core"
)

type contextKey struct {
	name string
}

var (
	modelIDKey   = &contextKey{"model-id"}
	tokenInfoKey = &contextKey{"token-info"}
)

// WithModelID annotates the context with the model handling the request.
func WithModelID(ctx context.Context, modelID core.ModelID) context.Context {
	return context.WithValue(ctx, modelIDKey, modelID)
}

// GetModelID retrieves the model ID from the context.
func GetModelID(ctx context.Context) (core.ModelID, bool) {
	modelID, ok := ctx.Value(modelIDKey).(core.ModelID)
	return modelID, ok
}

// WithTokenInfo annotates the context with token usage for the request.
func WithTokenInfo(ctx context.Context, info *core.TokenInfo) context.Context {
	return context.WithValue(ctx, tokenInfoKey, info)
}

// GetTokenInfo retrieves token usage from the context.
func GetTokenInfo(ctx context.Context) (*core.TokenInfo, bool) {
	info, ok := ctx.Value(tokenInfoKey).(*core.TokenInfo)
	return info, ok
}
