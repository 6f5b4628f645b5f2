package core

import (
	"context"
	"time"
)

// InvocationFilter narrows Journal.List. Zero fields match everything.
type InvocationFilter struct {
	Target string
	Status InvocationStatus
	Limit  int
}

// Journal persists invocation records on the parent side.
type Journal interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Start records a new running invocation. An empty ID is filled in.
	Start(ctx context.Context, inv *Invocation) error

	// Finish stores the outcome of a running invocation.
	Finish(ctx context.Context, id string, outcome Outcome) error

	// Queries
	Get(ctx context.Context, id string) (*Invocation, error)
	List(ctx context.Context, filter InvocationFilter) ([]*Invocation, error)

	// Prune deletes finished invocations started before the cutoff.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Outcome is what Finish writes back.
type Outcome struct {
	Status   InvocationStatus
	Result   []byte
	Error    string
	ExitCode int
	Duration time.Duration
}
