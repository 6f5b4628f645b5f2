package bridge

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jdziat/confinity/pkg/core"
	"github.com/jdziat/confinity/pkg/engine"
	"github.com/jdziat/confinity/pkg/logging"
	"github.com/jdziat/confinity/pkg/registry"
)

// EnvPrefix prefixes the environment variables that mirror command flags,
// e.g. CONFINITY_LOG_LEVEL.
const EnvPrefix = "CONFINITY"

// NewCommand builds the child root command around a Bridge.
func NewCommand(reg *registry.Registry, opts ...Option) *cobra.Command {
	b := New(reg, opts...)

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "confinity-child <target> <payload>",
		Short:         "Invoke one registered target with a base64 payload",
		Long:          "Resolves <target>, invokes it with the decoded <payload> and writes the encoded result to stdout inside a boundary envelope.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !b.fixedLogger {
				b.logger = logging.Init(b.stderr, v.GetString("log-format"), v.GetString("log-level"))
				b.engine = engine.New(engine.WithLogger(b.logger))
			}

			if v.GetBool("list-targets") {
				return listTargets(cmd, b.registry)
			}
			return b.Run(cmd.Context(), args)
		},
	}

	cmd.SetOut(b.stdout)
	cmd.SetErr(b.stderr)

	flags := cmd.Flags()
	flags.SetInterspersed(false)
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.Bool("list-targets", false, "List registered targets and exit")
	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		err = core.Wrap(core.ErrConfiguration, "", err)
		fmt.Fprintf(c.ErrOrStderr(), "Error: %v\n", err)
		return err
	})

	return cmd
}

func listTargets(cmd *cobra.Command, reg *registry.Registry) error {
	out := cmd.OutOrStdout()
	for _, name := range reg.Names() {
		target, err := reg.Resolve(name)
		if err != nil {
			fmt.Fprintf(out, "%s\tinvalid: %v\n", name, err)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", name, target.Signature())
	}
	return nil
}

// Execute runs the child command with args and returns the process exit code.
func Execute(ctx context.Context, reg *registry.Registry, args []string, opts ...Option) int {
	if args == nil {
		args = []string{}
	}
	cmd := NewCommand(reg, opts...)
	cmd.SetArgs(args)
	return core.ExitCode(cmd.ExecuteContext(ctx))
}

// Main runs the child command with the process arguments and exits.
func Main(reg *registry.Registry, opts ...Option) {
	os.Exit(Execute(context.Background(), reg, os.Args[1:], opts...))
}
