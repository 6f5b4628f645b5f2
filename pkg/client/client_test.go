package client

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/jdziat/confinity/pkg/boundary"
	"github.com/jdziat/confinity/pkg/bridge"
	"github.com/jdziat/confinity/pkg/codec"
	"github.com/jdziat/confinity/pkg/core"
	"github.com/jdziat/confinity/pkg/metrics"
	"github.com/jdziat/confinity/pkg/registry"
	"github.com/jdziat/confinity/pkg/security"
	"github.com/jdziat/confinity/pkg/storage"
)

// =============================================================================
// Test targets
// =============================================================================

type echo struct{}

func (echo) Invoke(x any) any { return x }

type AddArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

type adder struct{}

func (adder) Invoke(args AddArgs) int { return args.A + args.B }

type Greeting struct {
	Message string `json:"message"`
	Length  int    `json:"length"`
}

type greeter struct{}

func (greeter) Invoke(name string) Greeting {
	msg := "Hello, " + name + "!"
	return Greeting{Message: msg, Length: len(msg)}
}

type failing struct{}

func (failing) Invoke(string) (string, error) { return "", errors.New("internal failure") }

type sleeper struct{}

func (sleeper) Invoke(ctx context.Context, ms float64) (bool, error) {
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func testRegistry() *registry.Registry {
	reg := registry.New()
	reg.MustRegister("demo.Echo", echo{})
	reg.MustRegister("demo.Adder", adder{})
	reg.MustRegister("demo.Greeter", greeter{})
	reg.MustRegister("demo.Failing", failing{})
	reg.MustRegister("demo.Sleeper", sleeper{})
	return reg
}

// inProcessRunner runs the child bridge in the test process.
type inProcessRunner struct {
	reg *registry.Registry

	mu      sync.Mutex
	env     []string
	calls   int
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (r *inProcessRunner) Name() string { return "inproc" }

func (r *inProcessRunner) Run(ctx context.Context, target, payload string, env []string) (*Output, error) {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		seen := r.maxSeen.Load()
		if n <= seen || r.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	r.mu.Lock()
	r.env = env
	r.calls++
	r.mu.Unlock()

	vars := map[string]string{}
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		vars[k] = v
	}

	var stdout, stderr bytes.Buffer
	code := bridge.Execute(ctx, r.reg, []string{target, payload},
		bridge.WithStdout(&stdout),
		bridge.WithStderr(&stderr),
		bridge.WithLogger(slog.New(slog.NewTextHandler(&stderr, nil))),
		bridge.WithEnv(func(k string) string { return vars[k] }),
	)
	return &Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: code}, nil
}

// stubRunner returns a canned output.
type stubRunner struct {
	out *Output
	err error
}

func (r *stubRunner) Name() string { return "stub" }

func (r *stubRunner) Run(context.Context, string, string, []string) (*Output, error) {
	return r.out, r.err
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *inProcessRunner) {
	t.Helper()
	runner := &inProcessRunner{reg: testRegistry()}
	return New(runner, opts...), runner
}

func newTestJournal(t *testing.T) *storage.GormStorage {
	t.Helper()
	s, err := storage.Open(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// =============================================================================
// Call
// =============================================================================

func TestCall_Echo(t *testing.T) {
	c, _ := newTestClient(t)

	out, err := c.Call(context.Background(), "demo.Echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestCall_EchoStructure(t *testing.T) {
	c, _ := newTestClient(t)

	in := map[string]any{"list": []any{1.0, "two", nil, true}, "nested": map[string]any{"k": "v"}}
	out, err := c.Call(context.Background(), "demo.Echo", in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCallAs_Adder(t *testing.T) {
	c, _ := newTestClient(t)

	sum, err := CallAs[int](context.Background(), c, "demo.Adder", AddArgs{A: 2, B: 3})
	require.NoError(t, err)
	assert.Equal(t, 5, sum)
}

func TestCallAs_Struct(t *testing.T) {
	c, _ := newTestClient(t)

	g, err := CallAs[Greeting](context.Background(), c, "demo.Greeter", "World")
	require.NoError(t, err)
	assert.Equal(t, Greeting{Message: "Hello, World!", Length: 13}, g)
}

func TestCallAs_ResultTypeMismatch(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := CallAs[int](context.Background(), c, "demo.Echo", "not a number")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvocationType)
	assert.Contains(t, err.Error(), "demo.Echo")
}

func TestCall_RemoteFailureKinds(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Call(ctx, "demo.Failing", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrBoundaryNotFound)
	assert.ErrorIs(t, err, core.ErrTargetInvocation)

	var rerr *core.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, core.ExitTargetInvocation, rerr.ExitCode)
	assert.Contains(t, rerr.Stderr, "internal failure")

	_, err = c.Call(ctx, "demo.Missing", "x")
	assert.ErrorIs(t, err, core.ErrTypeNotFound)

	_, err = c.Call(ctx, "demo.Adder", "not an object")
	assert.ErrorIs(t, err, core.ErrInvocationType)
}

func TestCall_InvalidTargetName(t *testing.T) {
	c, runner := newTestClient(t)

	_, err := c.Call(context.Background(), "1bad name", "x")
	assert.ErrorIs(t, err, core.ErrInvalidTargetName)
	assert.Zero(t, runner.calls)
}

func TestCall_PayloadTooLarge(t *testing.T) {
	c, runner := newTestClient(t)

	_, err := c.Call(context.Background(), "demo.Echo", strings.Repeat("x", security.MaxEncodedPayloadLength))
	assert.ErrorIs(t, err, core.ErrPayloadTooLarge)
	assert.Zero(t, runner.calls)
}

func TestCall_PayloadOneOverLimit(t *testing.T) {
	c, runner := newTestClient(t)

	// tag + 3-byte length + 98300 bytes = 98304 bytes = 131072 base64 chars
	payload := strings.Repeat("x", 98300)
	encoded, err := codec.Encode(payload)
	require.NoError(t, err)
	require.Len(t, encoded, security.MaxEncodedPayloadLength+1)

	_, err = c.Call(context.Background(), "demo.Echo", payload)
	assert.ErrorIs(t, err, core.ErrPayloadTooLarge)
	assert.Zero(t, runner.calls)
}

func TestCall_UnencodablePayload(t *testing.T) {
	c, runner := newTestClient(t)

	_, err := c.Call(context.Background(), "demo.Echo", make(chan int))
	assert.ErrorIs(t, err, core.ErrEncode)
	assert.Zero(t, runner.calls)
}

func TestCall_RunnerError(t *testing.T) {
	c := New(&stubRunner{err: errors.New("exec: not found")})

	_, err := c.Call(context.Background(), "demo.Echo", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exec: not found")
	assert.NotErrorIs(t, err, core.ErrBoundaryNotFound)
}

func TestCall_LastEnvelopeWins(t *testing.T) {
	stdout := boundary.Wrap("GgVmYWtlIQ==") + "\n" + boundary.Wrap("GgRyZWFs") + "\n"
	c := New(&stubRunner{out: &Output{Stdout: []byte(stdout)}})

	out, err := c.Call(context.Background(), "demo.Echo", "x")
	require.NoError(t, err)
	assert.Equal(t, "real", out)
}

func TestCall_CorruptEnvelope(t *testing.T) {
	c := New(&stubRunner{out: &Output{Stdout: []byte(boundary.Wrap("////") + "\n")}})

	_, err := c.Call(context.Background(), "demo.Echo", "x")
	assert.ErrorIs(t, err, core.ErrDecode)
}

func TestCall_TruncatedOutput(t *testing.T) {
	c := New(&stubRunner{out: &Output{Truncated: true}})

	_, err := c.Call(context.Background(), "demo.Echo", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestCall_UnclassifiedExit(t *testing.T) {
	c := New(&stubRunner{out: &Output{ExitCode: 137, Stderr: []byte("killed\n")}})

	_, err := c.Call(context.Background(), "demo.Echo", "x")
	var rerr *core.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Nil(t, rerr.Kind)
	assert.Equal(t, 137, rerr.ExitCode)
	assert.Equal(t, "killed", rerr.Stderr)
}

func TestCall_NoRunner(t *testing.T) {
	_, err := New(nil).Call(context.Background(), "demo.Echo", "x")
	assert.Error(t, err)
}

// =============================================================================
// Concurrency
// =============================================================================

func TestCall_MaxParallel(t *testing.T) {
	c, runner := newTestClient(t, WithMaxParallel(2))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := CallAs[bool](context.Background(), c, "demo.Sleeper", 20)
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, runner.maxSeen.Load(), int32(2))
	assert.Equal(t, 8, runner.calls)
}

func TestCall_ContextCanceledWhileWaiting(t *testing.T) {
	c := New(&stubRunner{}, WithMaxParallel(1))
	c.sem <- struct{}{} // occupy the only slot

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Call(ctx, "demo.Echo", "x")
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Journal, metrics, tracing
// =============================================================================

func TestCall_Journaled(t *testing.T) {
	journal := newTestJournal(t)
	c, _ := newTestClient(t, WithJournal(journal))
	ctx := context.Background()

	_, id, err := c.CallRecorded(ctx, "demo.Adder", AddArgs{A: 1, B: 1})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	inv, err := journal.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "demo.Adder", inv.Target)
	assert.Equal(t, "inproc", inv.Runner)
	assert.Equal(t, core.StatusSucceeded, inv.Status)
	assert.NotEmpty(t, inv.Payload)
	assert.NotEmpty(t, inv.Result)
	assert.NotNil(t, inv.CompletedAt)

	_, id, err = c.CallRecorded(ctx, "demo.Failing", "x")
	require.Error(t, err)

	inv, err = journal.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, inv.Status)
	assert.Equal(t, core.ExitTargetInvocation, inv.ExitCode)
	assert.Contains(t, inv.Error, "internal failure")
	assert.Empty(t, inv.Result)
}

func TestCall_JournalFailureDoesNotFailCall(t *testing.T) {
	journal := newTestJournal(t)
	require.NoError(t, journal.Close())

	c, _ := newTestClient(t, WithJournal(journal))
	out, id, err := c.CallRecorded(context.Background(), "demo.Echo", "still works")
	require.NoError(t, err)
	assert.Equal(t, "still works", out)
	assert.Empty(t, id)
}

func TestCall_Metrics(t *testing.T) {
	m := metrics.New(nil)
	c, _ := newTestClient(t, WithMetrics(m))
	ctx := context.Background()

	_, err := c.Call(ctx, "demo.Echo", "x")
	require.NoError(t, err)
	_, err = c.Call(ctx, "demo.Failing", "x")
	require.Error(t, err)

	expected := `
# HELP confinity_boundary_missing_total Child processes that exited without a boundary envelope
# TYPE confinity_boundary_missing_total counter
confinity_boundary_missing_total{target="demo.Failing"} 1
# HELP confinity_invocations_in_flight Child processes currently running
# TYPE confinity_invocations_in_flight gauge
confinity_invocations_in_flight 0
# HELP confinity_invocations_total Total number of child-process invocations
# TYPE confinity_invocations_total counter
confinity_invocations_total{status="failed",target="demo.Failing"} 1
confinity_invocations_total{status="succeeded",target="demo.Echo"} 1
`
	err = testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"confinity_invocations_total", "confinity_boundary_missing_total", "confinity_invocations_in_flight")
	require.NoError(t, err)
}

func TestCall_PropagatesTraceContext(t *testing.T) {
	journal := newTestJournal(t)
	c, runner := newTestClient(t, WithJournal(journal))

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), sc)

	_, id, err := c.CallRecorded(ctx, "demo.Echo", "traced")
	require.NoError(t, err)

	require.Len(t, runner.env, 1)
	assert.True(t, strings.HasPrefix(runner.env[0], "TRACEPARENT=00-4bf92f3577b34da6a3ce929d0e0e4736-"))

	inv, err := journal.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", inv.TraceID)
}

func TestCall_NoTraceContext(t *testing.T) {
	c, runner := newTestClient(t)

	_, err := c.Call(context.Background(), "demo.Echo", "x")
	require.NoError(t, err)
	assert.Empty(t, runner.env)
}
