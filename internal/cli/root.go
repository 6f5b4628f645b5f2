// Package cli implements the confinity parent command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdziat/confinity/pkg/config"
	"github.com/jdziat/confinity/pkg/core"
	"github.com/jdziat/confinity/pkg/logging"
	"github.com/jdziat/confinity/pkg/storage"
)

var errNoJournal = errors.New("no journal configured (set journal.driver in the config file)")

type app struct {
	stdout io.Writer
	stderr io.Writer
	v      *viper.Viper

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the confinity command tree.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, v: viper.New()}
	a.v.SetEnvPrefix("CONFINITY")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "confinity",
		Short: "Run registered targets in isolated child processes",
		Long: `confinity starts a child process per call, passes it a base64 payload and
reads the result back from a boundary envelope on the child's stdout.

Examples:
  confinity call demo.Adder '{"a": 2, "b": 3}'
  confinity history --status failed
  confinity show <id>
  confinity prune --older-than 24h`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default: built-in defaults)")
	pf.String("log-level", "", "log level override (debug, info, warn, error)")
	pf.String("log-format", "", "log format override (text, json)")
	_ = a.v.BindPFlags(pf)

	root.AddCommand(
		a.callCommand(),
		a.historyCommand(),
		a.showCommand(),
		a.pruneCommand(),
		a.serveCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if path := a.v.GetString("config"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return core.Wrap(core.ErrConfiguration, "", err)
		}
		cfg = loaded
	}
	if lvl := a.v.GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if f := a.v.GetString("log-format"); f != "" {
		cfg.Log.Format = f
	}

	a.cfg = cfg
	a.logger = logging.Init(a.stderr, cfg.Log.Format, cfg.Log.Level)
	return nil
}

// openJournal opens the configured journal or fails when none is set.
func (a *app) openJournal(ctx context.Context) (*storage.GormStorage, error) {
	journal, err := a.cfg.OpenJournal()
	if err != nil {
		return nil, err
	}
	if journal == nil {
		return nil, errNoJournal
	}
	if err := journal.Migrate(ctx); err != nil {
		_ = journal.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return journal, nil
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return core.ExitCode(err)
}
