// Package registry resolves target names to constructible types.
//
// Targets are registered explicitly, usually from an init function or the
// child binary's main, so that name lookup never depends on runtime type
// discovery. A target is a zero-argument constructor (or a prototype value)
// whose instances expose exactly one Invoke method:
//
//	reg := registry.New()
//	reg.MustRegister("demo.Echo", func() *Echo { return &Echo{} })
//	reg.MustRegister("demo.Adder", Adder{})
//
//	target, err := reg.Resolve("demo.Echo")
//
// Most users should import the root package github.com/jdziat/confinity
// which re-exports Registry and Register.
package registry
