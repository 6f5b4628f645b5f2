// Package security provides validation, sanitization, and limits for the confinity package.
//
// This package includes:
//   - Input validation for target names and encoded payload sizes
//   - Error message sanitization before child stderr is stored or returned
//   - Clamping of the parent's child-process parallelism
//
// Most users should import the root package github.com/jdziat/confinity
// which re-exports these functions.
package security
