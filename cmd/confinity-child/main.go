// Command confinity-child is the child binary started by the parent for each
// invocation. It carries the demo targets; real deployments build their own
// child with their targets registered the same way.
package main

import (
	"github.com/jdziat/confinity/examples/targets"
	"github.com/jdziat/confinity/pkg/bridge"
	"github.com/jdziat/confinity/pkg/registry"
)

func main() {
	reg := registry.Default()
	targets.Register(reg)
	bridge.Main(reg)
}
