package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jdziat/confinity/pkg/boundary"
	"github.com/jdziat/confinity/pkg/codec"
	"github.com/jdziat/confinity/pkg/core"
	"github.com/jdziat/confinity/pkg/logging"
	"github.com/jdziat/confinity/pkg/metrics"
	"github.com/jdziat/confinity/pkg/security"
)

const (
	tracerName = "github.com/jdziat/confinity/pkg/client"

	defaultMaxParallel = 16

	envTraceParent = "TRACEPARENT"
	envTraceState  = "TRACESTATE"
)

// Client invokes targets in child processes.
type Client struct {
	runner     Runner
	journal    core.Journal
	metrics    *metrics.Collector
	logger     *slog.Logger
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	sem        chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithJournal records every call in j.
func WithJournal(j core.Journal) Option {
	return func(c *Client) { c.journal = j }
}

// WithMetrics records every call in m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger for call diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxParallel bounds the number of concurrently running children.
// Values are clamped to [1, security.MaxParallel].
func WithMaxParallel(n int) Option {
	return func(c *Client) { c.sem = make(chan struct{}, security.ClampParallel(n)) }
}

// WithTracerProvider sets the provider for call spans. The default is the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates a Client that starts children through runner.
func New(runner Runner, opts ...Option) *Client {
	c := &Client{
		runner:     runner,
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		propagator: propagation.TraceContext{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sem == nil {
		c.sem = make(chan struct{}, defaultMaxParallel)
	}
	return c
}

// Call invokes target with payload in a fresh child process and returns the
// decoded result as a generic value tree.
func (c *Client) Call(ctx context.Context, target string, payload any) (any, error) {
	result, _, err := c.call(ctx, target, payload)
	return result, err
}

// CallAs invokes target and binds the result into T.
func CallAs[T any](ctx context.Context, c *Client, target string, payload any) (T, error) {
	var out T
	result, _, err := c.call(ctx, target, payload)
	if err != nil {
		return out, err
	}
	if err := codec.Into(result, &out); err != nil {
		return out, core.WithTarget(err, target)
	}
	return out, nil
}

// CallRecorded is like Call but also returns the journal ID of the call, or
// "" when no journal is configured.
func (c *Client) CallRecorded(ctx context.Context, target string, payload any) (any, string, error) {
	return c.call(ctx, target, payload)
}

func (c *Client) call(ctx context.Context, target string, payload any) (any, string, error) {
	if c.runner == nil {
		return nil, "", errors.New("confinity: client has no runner")
	}
	if err := security.ValidateTargetName(target); err != nil {
		return nil, "", fmt.Errorf("call %q: %w", target, err)
	}

	wire, err := codec.Marshal(payload)
	if err != nil {
		return nil, "", core.WithTarget(err, target)
	}
	encoded := codec.ToText(wire)
	if err := security.ValidatePayloadLength(encoded); err != nil {
		return nil, "", fmt.Errorf("call %q: %w", target, err)
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}

	ctx, span := c.tracer.Start(ctx, "confinity.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("confinity.target", target),
			attribute.String("confinity.runner", c.runner.Name()),
		),
	)
	defer span.End()

	logger := logging.WithTrace(ctx, c.logger).With("target", target, "runner", c.runner.Name())

	inv := &core.Invocation{
		Target:  target,
		Runner:  c.runner.Name(),
		Payload: wire,
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		inv.TraceID = sc.TraceID().String()
	}
	c.journalStart(ctx, logger, inv)

	var done func(string, time.Duration)
	if c.metrics != nil {
		done = c.metrics.Started(target)
	}

	start := time.Now()
	result, raw, exitCode, err := c.invoke(ctx, logger, target, encoded)
	elapsed := time.Since(start)

	outcome := core.Outcome{
		Status:   core.StatusSucceeded,
		Result:   raw,
		ExitCode: exitCode,
		Duration: elapsed,
	}
	if err != nil {
		outcome.Status = core.StatusFailed
		outcome.Error = err.Error()
		if outcome.ExitCode == core.ExitOK {
			outcome.ExitCode = core.ExitCode(err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "call failed")
		logger.WarnContext(ctx, "call failed", "exit_code", outcome.ExitCode, "duration", elapsed, "error", err)
	} else {
		logger.DebugContext(ctx, "call succeeded", "duration", elapsed)
	}

	if done != nil {
		done(string(outcome.Status), elapsed)
	}
	c.journalFinish(ctx, logger, inv.ID, outcome)

	return result, inv.ID, err
}

func (c *Client) invoke(ctx context.Context, logger *slog.Logger, target, encoded string) (any, []byte, int, error) {
	out, err := c.runner.Run(ctx, target, encoded, c.traceEnv(ctx))
	if err != nil {
		return nil, nil, core.ExitUnknown, fmt.Errorf("call %q: %w", target, err)
	}
	if out.Truncated {
		return nil, nil, out.ExitCode, fmt.Errorf("call %q: child output exceeds %d bytes", target, security.MaxResultOutputSize)
	}

	text, err := boundary.Extract(out.Stdout)
	if err != nil {
		if c.metrics != nil {
			c.metrics.BoundaryMissing(target)
		}
		return nil, nil, out.ExitCode, &core.RemoteError{
			Target:   target,
			ExitCode: out.ExitCode,
			Stderr:   security.SanitizeErrorMessage(strings.TrimSpace(string(out.Stderr))),
			Kind:     core.KindForExitCode(out.ExitCode),
		}
	}
	if out.ExitCode != core.ExitOK {
		logger.WarnContext(ctx, "child emitted a result but exited non-zero", "exit_code", out.ExitCode)
	}

	raw, err := codec.FromText(text)
	if err != nil {
		return nil, nil, out.ExitCode, core.WithTarget(err, target)
	}
	result, err := codec.Unmarshal(raw)
	if err != nil {
		return nil, nil, out.ExitCode, core.WithTarget(err, target)
	}
	return result, raw, out.ExitCode, nil
}

func (c *Client) traceEnv(ctx context.Context) []string {
	carrier := propagation.MapCarrier{}
	c.propagator.Inject(ctx, carrier)

	var env []string
	if tp := carrier.Get("traceparent"); tp != "" {
		env = append(env, envTraceParent+"="+tp)
	}
	if ts := carrier.Get("tracestate"); ts != "" {
		env = append(env, envTraceState+"="+ts)
	}
	return env
}

// Journal failures never fail the call; they are logged.
func (c *Client) journalStart(ctx context.Context, logger *slog.Logger, inv *core.Invocation) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Start(context.WithoutCancel(ctx), inv); err != nil {
		logger.ErrorContext(ctx, "journal start failed", "error", err)
		inv.ID = ""
	}
}

func (c *Client) journalFinish(ctx context.Context, logger *slog.Logger, id string, outcome core.Outcome) {
	if c.journal == nil || id == "" {
		return
	}
	if err := c.journal.Finish(context.WithoutCancel(ctx), id, outcome); err != nil {
		logger.ErrorContext(ctx, "journal finish failed", "id", id, "error", err)
	}
}
