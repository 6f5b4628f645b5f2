// Package invctx gives targets access to the invocation they are serving.
package invctx

import (
	"context"
)

type infoKey struct{}

// Info describes the current child-process invocation.
type Info struct {
	// Target is the registry name the process was started with.
	Target string

	// TraceID is the W3C trace ID propagated from the parent, if any.
	TraceID string
}

// WithInfo adds invocation info to a context.Context.
func WithInfo(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, infoKey{}, info)
}

// FromContext returns the current invocation, or nil outside of a target.
func FromContext(ctx context.Context) *Info {
	if info, ok := ctx.Value(infoKey{}).(*Info); ok {
		return info
	}
	return nil
}

// TargetFromContext returns the current target name, or empty string
// outside of a target.
func TargetFromContext(ctx context.Context) string {
	info := FromContext(ctx)
	if info == nil {
		return ""
	}
	return info.Target
}
