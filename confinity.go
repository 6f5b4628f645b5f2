// Package confinity runs a registered target in a fresh child process and
// carries its argument and result across the process boundary.
//
// This is the main package users should import. It re-exports the public
// types of the pkg/ packages for a clean API surface.
//
// Child binary:
//
//	func main() {
//	    reg := confinity.NewRegistry()
//	    reg.MustRegister("demo.Adder", Adder{})
//	    confinity.Main(reg)
//	}
//
// Parent:
//
//	c := confinity.NewClient(&confinity.ExecRunner{Path: "./child"})
//	sum, err := confinity.CallAs[int](ctx, c, "demo.Adder", AddArgs{A: 2, B: 3})
package confinity

import (
	"context"

	"github.com/jdziat/confinity/pkg/bridge"
	"github.com/jdziat/confinity/pkg/client"
	"github.com/jdziat/confinity/pkg/codec"
	"github.com/jdziat/confinity/pkg/core"
	"github.com/jdziat/confinity/pkg/invctx"
	"github.com/jdziat/confinity/pkg/registry"
	"github.com/jdziat/confinity/pkg/security"
	"github.com/jdziat/confinity/pkg/storage"
)

// Type aliases
type (
	// Registry maps target names to factories.
	Registry = registry.Registry

	// Target is a resolved, validated registry entry.
	Target = registry.Target

	// Client invokes targets in child processes.
	Client = client.Client

	// ClientOption configures a Client.
	ClientOption = client.Option

	// Runner starts one child process per call.
	Runner = client.Runner

	// ExecRunner spawns the child binary on the local host.
	ExecRunner = client.ExecRunner

	// DockerRunner runs the child binary in a container without network.
	DockerRunner = client.DockerRunner

	// Output is what a child process left behind.
	Output = client.Output

	// Error is a classified invocation failure.
	Error = core.Error

	// RemoteError is a child that exited without a result.
	RemoteError = core.RemoteError

	// PanicError is the cause recorded when a target panics.
	PanicError = core.PanicError

	// Invocation is a journaled call.
	Invocation = core.Invocation

	// Journal persists invocation records.
	Journal = core.Journal

	// InvocationFilter narrows Journal.List.
	InvocationFilter = core.InvocationFilter

	// GormStorage is the GORM-backed Journal.
	GormStorage = storage.GormStorage

	// InvocationInfo describes the invocation a target is serving.
	InvocationInfo = invctx.Info
)

// Failure kinds
var (
	ErrConfiguration          = core.ErrConfiguration
	ErrDecode                 = core.ErrDecode
	ErrEncode                 = core.ErrEncode
	ErrTypeNotFound           = core.ErrTypeNotFound
	ErrDispatchMethodNotFound = core.ErrDispatchMethodNotFound
	ErrNotConstructible       = core.ErrNotConstructible
	ErrConstruction           = core.ErrConstruction
	ErrInvocationType         = core.ErrInvocationType
	ErrTargetInvocation       = core.ErrTargetInvocation
	ErrBoundaryNotFound       = core.ErrBoundaryNotFound
	ErrPayloadTooLarge        = core.ErrPayloadTooLarge
)

// Client options
var (
	WithJournal        = client.WithJournal
	WithMetrics        = client.WithMetrics
	WithLogger         = client.WithLogger
	WithMaxParallel    = client.WithMaxParallel
	WithTracerProvider = client.WithTracerProvider
)

// Limits
const (
	MaxTargetNameLength     = security.MaxTargetNameLength
	MaxEncodedPayloadLength = security.MaxEncodedPayloadLength
	MaxResultOutputSize     = security.MaxResultOutputSize
)

// Validation
var (
	ValidateTargetName    = security.ValidateTargetName
	ValidatePayloadLength = security.ValidatePayloadLength
	SanitizeErrorMessage  = security.SanitizeErrorMessage
)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return registry.New()
}

// Register adds a target to the process-wide registry.
func Register(name string, factory any) error {
	return registry.Register(name, factory)
}

// MustRegister is like Register but panics on error.
func MustRegister(name string, factory any) {
	registry.MustRegister(name, factory)
}

// Main is the child entry point: it performs the invocation named by the
// process arguments and exits. A nil reg uses the process-wide registry.
func Main(reg *Registry) {
	if reg == nil {
		reg = registry.Default()
	}
	bridge.Main(reg)
}

// NewClient creates a Client.
func NewClient(runner Runner, opts ...ClientOption) *Client {
	return client.New(runner, opts...)
}

// CallAs invokes target in a child process and binds the result into T.
func CallAs[T any](ctx context.Context, c *Client, target string, payload any) (T, error) {
	return client.CallAs[T](ctx, c, target, payload)
}

// OpenJournal opens a "sqlite" or "postgres" journal.
func OpenJournal(driver, dsn string) (*GormStorage, error) {
	return storage.Open(driver, dsn)
}

// Encode serializes v into payload text.
func Encode(v any) (string, error) {
	return codec.Encode(v)
}

// Decode parses payload text into a generic value tree.
func Decode(text string) (any, error) {
	return codec.Decode(text)
}

// InvocationFromContext returns the invocation a target is serving.
func InvocationFromContext(ctx context.Context) *InvocationInfo {
	return invctx.FromContext(ctx)
}

// ExitCode maps an error to the child exit status for its failure kind.
func ExitCode(err error) int {
	return core.ExitCode(err)
}
