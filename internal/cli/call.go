package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jdziat/confinity/pkg/client"
	"github.com/jdziat/confinity/pkg/core"
)

func (a *app) callCommand() *cobra.Command {
	var showID bool

	cmd := &cobra.Command{
		Use:   "call <target> [json-payload|-]",
		Short: "Invoke a target in a child process",
		Long: `Invoke a target in a fresh child process. The payload is JSON, read from the
second argument or from stdin when it is "-"; it defaults to null. The result
is printed as JSON.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args[1:])
			if err != nil {
				return core.Wrap(core.ErrConfiguration, args[0], err)
			}

			opts := []client.Option{
				client.WithLogger(a.logger),
				client.WithMaxParallel(a.cfg.MaxParallel),
			}
			if a.cfg.Journal.Driver != "" {
				journal, err := a.openJournal(cmd.Context())
				if err != nil {
					return err
				}
				defer journal.Close()
				opts = append(opts, client.WithJournal(journal))
			}

			c := client.New(a.cfg.NewRunner(), opts...)
			result, id, err := c.CallRecorded(cmd.Context(), args[0], payload)
			if showID && id != "" {
				fmt.Fprintln(a.stderr, "invocation:", id)
			}
			if err != nil {
				return err
			}
			return writeJSON(a.stdout, result)
		},
	}
	cmd.Flags().BoolVar(&showID, "show-id", false, "print the journal ID to stderr")
	return cmd
}

func readPayload(stdin io.Reader, args []string) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	src := args[0]
	if src == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		src = string(data)
	}
	return parsePayload(src)
}

// parsePayload decodes a JSON payload; blank input is null.
func parsePayload(src string) (any, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}

	var payload any
	if err := json.Unmarshal([]byte(src), &payload); err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	return payload, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
