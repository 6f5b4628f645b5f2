// Package core provides the fundamental types and interfaces for the confinity package.
//
// This package contains:
//   - Request, the input of one child-process invocation
//   - Invocation, the parent-side journal record with GORM annotations
//   - Journal interface defining the persistence contract
//   - The error taxonomy and its mapping to process exit codes
//
// Most users should import the root package github.com/jdziat/confinity
// instead of this package directly.
package core
