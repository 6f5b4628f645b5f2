// Package client is the parent side of an invocation: it encodes a payload,
// starts a child process through a Runner, and decodes the result from the
// boundary envelope on the child's stdout.
//
//	c := client.New(&client.ExecRunner{Path: "./confinity-child"})
//	sum, err := client.CallAs[int](ctx, c, "demo.Adder", map[string]int{"a": 2, "b": 3})
//
// A child that exits without an envelope surfaces as *core.RemoteError whose
// Kind is recovered from the exit code, so errors.Is(err, core.ErrDecode)
// works across the process boundary.
package client
