// Package core provides the domain models and interfaces for the confinity package.
package core

import (
	"time"
)

// Request is the input of a single child-process invocation, taken verbatim
// from the process arguments.
type Request struct {
	Target  string
	Payload string
}

// InvocationStatus represents the state of a journaled invocation.
type InvocationStatus string

const (
	StatusRunning   InvocationStatus = "running"
	StatusSucceeded InvocationStatus = "succeeded"
	StatusFailed    InvocationStatus = "failed"
)

// Invocation is the parent-side record of one child-process call.
type Invocation struct {
	ID          string           `gorm:"primaryKey;size:36"`
	Target      string           `gorm:"index;size:255;not null"`
	Runner      string           `gorm:"size:32"`
	Status      InvocationStatus `gorm:"index;size:20;default:'running'"`
	Payload     []byte           `gorm:"type:bytes"` // wire bytes, not base64
	Result      []byte           `gorm:"type:bytes"`
	Error       string           `gorm:"type:text"`
	ExitCode    int              `gorm:"default:0"`
	DurationMs  int64            `gorm:"default:0"`
	TraceID     string           `gorm:"size:32"`
	StartedAt   time.Time        `gorm:"index"`
	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// IsFinal reports whether the invocation has finished.
func (i *Invocation) IsFinal() bool {
	return i.Status == StatusSucceeded || i.Status == StatusFailed
}
