// Package engine constructs target instances and invokes their dispatch method.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/jdziat/confinity/pkg/codec"
	"github.com/jdziat/confinity/pkg/core"
	"github.com/jdziat/confinity/pkg/registry"
)

// Engine runs one invocation at a time against resolved targets.
type Engine struct {
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for invocation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invoke builds a fresh instance of target and calls its Invoke method with
// payload bound to the declared parameter type.
//
// Infrastructure failures are reported as core.ErrConstruction or
// core.ErrInvocationType; anything raised by the target itself, returned
// error or panic, as core.ErrTargetInvocation. There is no retry and no
// timeout: the call blocks until the target returns.
func (e *Engine) Invoke(ctx context.Context, target *registry.Target, payload any) (any, error) {
	if target == nil {
		return nil, core.Wrap(core.ErrTypeNotFound, "", nil)
	}

	inst, err := target.Construct()
	if err != nil {
		return nil, err
	}

	arg, err := codec.Bind(payload, target.ArgsType)
	if err != nil {
		return nil, core.WithTarget(err, target.Name)
	}

	start := time.Now()
	result, err := target.Call(ctx, inst, arg)
	e.logger.DebugContext(ctx, "target invoked",
		"target", target.Name,
		"duration", time.Since(start),
		"ok", err == nil,
	)
	return result, err
}
