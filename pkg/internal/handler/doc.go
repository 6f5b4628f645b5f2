// Package handler provides internal reflection-based target construction and dispatch.
//
// This package is internal and should not be imported directly.
// It provides:
//   - Handler: validated constructor and Invoke method of a registered target
//   - Zero-argument construction through a factory function or a prototype value
//   - Invocation of the single Invoke method with panic capture
package handler
