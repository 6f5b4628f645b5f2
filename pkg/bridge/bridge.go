package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jdziat/confinity/pkg/boundary"
	"github.com/jdziat/confinity/pkg/codec"
	"github.com/jdziat/confinity/pkg/core"
	"github.com/jdziat/confinity/pkg/engine"
	"github.com/jdziat/confinity/pkg/invctx"
	"github.com/jdziat/confinity/pkg/logging"
	"github.com/jdziat/confinity/pkg/registry"
	"github.com/jdziat/confinity/pkg/security"
)

const tracerName = "github.com/jdziat/confinity/pkg/bridge"

// Trace context environment variables set by the parent client.
const (
	EnvTraceParent = "TRACEPARENT"
	EnvTraceState  = "TRACESTATE"
)

// Bridge performs a single invocation from process arguments.
type Bridge struct {
	registry *registry.Registry
	engine   *engine.Engine
	stdout   io.Writer
	stderr   io.Writer
	logger   *slog.Logger
	getenv   func(string) string
	tracer   trace.Tracer

	// set when the caller supplied a logger; flags then leave it alone
	fixedLogger bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithStdout sets the stream envelopes are written to.
func WithStdout(w io.Writer) Option {
	return func(b *Bridge) { b.stdout = w }
}

// WithStderr sets the diagnostic stream.
func WithStderr(w io.Writer) Option {
	return func(b *Bridge) { b.stderr = w }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
		b.fixedLogger = l != nil
	}
}

// WithEnv replaces os.Getenv for trace context lookup.
func WithEnv(getenv func(string) string) Option {
	return func(b *Bridge) { b.getenv = getenv }
}

// New creates a Bridge resolving targets from reg. A nil reg uses
// registry.Default().
func New(reg *registry.Registry, opts ...Option) *Bridge {
	if reg == nil {
		reg = registry.Default()
	}
	b := &Bridge{
		registry: reg,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		getenv:   os.Getenv,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewTextHandler(b.stderr, nil))
	}
	b.engine = engine.New(engine.WithLogger(b.logger))
	return b
}

// Run decodes the payload, resolves and invokes the target, and emits the
// encoded result. args must be exactly [target, payload]. The envelope is
// written only when every step succeeded; failures are logged to the
// diagnostic stream and returned.
func (b *Bridge) Run(ctx context.Context, args []string) error {
	if len(args) != 2 {
		err := core.Wrap(core.ErrConfiguration, "", fmt.Errorf("expected 2 arguments <target> <payload>, got %d", len(args)))
		b.report(ctx, b.logger, err)
		return err
	}
	req := core.Request{Target: args[0], Payload: args[1]}

	ctx = b.extractTrace(ctx)
	ctx, span := b.tracer.Start(ctx, "confinity.invoke",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("confinity.target", req.Target)),
	)
	defer span.End()

	info := &invctx.Info{Target: req.Target}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		info.TraceID = sc.TraceID().String()
	}
	ctx = invctx.WithInfo(ctx, info)

	logger := logging.WithTrace(ctx, b.logger).With("target", req.Target)

	if err := b.invoke(ctx, logger, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invocation failed")
		b.report(ctx, logger, err)
		return err
	}
	return nil
}

func (b *Bridge) invoke(ctx context.Context, logger *slog.Logger, req core.Request) error {
	if err := security.ValidatePayloadLength(req.Payload); err != nil {
		return core.Wrap(core.ErrDecode, req.Target, err)
	}

	payload, err := codec.Decode(req.Payload)
	if err != nil {
		return core.WithTarget(err, req.Target)
	}

	target, err := b.registry.Resolve(req.Target)
	if err != nil {
		return err
	}
	logger.DebugContext(ctx, "target resolved", "signature", target.Signature())

	restore := b.divertStdout()
	result, err := b.engine.Invoke(ctx, target, payload)
	restore()
	if err != nil {
		return err
	}

	encoded, err := codec.Encode(result)
	if err != nil {
		return core.WithTarget(err, req.Target)
	}

	if err := boundary.NewEmitter(b.stdout).Emit(encoded); err != nil {
		return fmt.Errorf("emit result: %w", err)
	}
	return nil
}

// divertStdout points os.Stdout at the diagnostic stream while a target
// runs, so the envelope is the only thing on the result stream. It applies
// only when the bridge writes envelopes to the process stdout.
func (b *Bridge) divertStdout() (restore func()) {
	out, ok := b.stdout.(*os.File)
	if !ok || out != os.Stdout {
		return func() {}
	}
	diag, ok := b.stderr.(*os.File)
	if !ok {
		diag = os.Stderr
	}
	os.Stdout = diag
	return func() { os.Stdout = out }
}

func (b *Bridge) extractTrace(ctx context.Context) context.Context {
	carrier := propagation.MapCarrier{}
	if tp := b.getenv(EnvTraceParent); tp != "" {
		carrier.Set("traceparent", tp)
	}
	if ts := b.getenv(EnvTraceState); ts != "" {
		carrier.Set("tracestate", ts)
	}
	if len(carrier) == 0 {
		return ctx
	}
	return propagation.TraceContext{}.Extract(ctx, carrier)
}

func (b *Bridge) report(ctx context.Context, logger *slog.Logger, err error) {
	attrs := []any{"exit_code", core.ExitCode(err), "error", err}

	var cerr *core.Error
	if errors.As(err, &cerr) {
		attrs = append(attrs, "kind", cerr.Kind.Error())
	}
	logger.ErrorContext(ctx, "invocation failed", attrs...)

	if cerr != nil && len(cerr.Stack) > 0 {
		fmt.Fprintf(b.stderr, "%s\n", cerr.Stack)
	}
}
