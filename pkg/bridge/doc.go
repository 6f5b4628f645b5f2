// Package bridge is the child-process entry point.
//
// A child binary registers its targets and hands control to Main:
//
//	func main() {
//	    reg := registry.New()
//	    reg.MustRegister("demo.Echo", Echo{})
//	    bridge.Main(reg)
//	}
//
// The process is then invoked as
//
//	confinity-child <target> <base64 payload>
//
// and performs exactly one invocation. On success a single line
//
//	__CONF_BOUNDARY_<base64 result>_CONF_BOUNDARY__
//
// is written to stdout and the process exits 0. On failure diagnostics go to
// stderr, no envelope is written, and the exit code identifies the failure
// kind (see core.ExitCode).
package bridge
