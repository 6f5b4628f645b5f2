package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/confinity/pkg/client"
	"github.com/jdziat/confinity/pkg/core"
	"github.com/jdziat/confinity/pkg/metrics"
	"github.com/jdziat/confinity/pkg/schedule"
	"github.com/jdziat/confinity/pkg/security"
)

const defaultListen = ":9090"

func (a *app) serveCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve calls over HTTP with metrics and journal retention",
		Long: `Serve calls over HTTP until interrupted:

  POST /v1/call/{target}   JSON payload in, {"id", "result"} out
  GET  /metrics            Prometheus metrics
  GET  /healthz            liveness

When a journal with a retention is configured, finished invocations are
pruned on journal.pruneSchedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("listen") {
				listen = a.cfg.Metrics.Listen
			}
			if listen == "" {
				listen = defaultListen
			}

			collector := metrics.New(nil).WithRuntimeCollectors()
			opts := []client.Option{
				client.WithLogger(a.logger),
				client.WithMetrics(collector),
				client.WithMaxParallel(a.cfg.MaxParallel),
			}

			if a.cfg.Journal.Driver != "" {
				journal, err := a.openJournal(ctx)
				if err != nil {
					return err
				}
				defer journal.Close()
				opts = append(opts, client.WithJournal(journal))

				if a.cfg.Journal.Retention > 0 {
					sched, err := schedule.Parse(a.cfg.Journal.PruneSchedule)
					if err != nil {
						return err
					}
					pruner, err := schedule.NewPruner(journal, a.cfg.Journal.Retention, sched, schedule.WithLogger(a.logger))
					if err != nil {
						return err
					}
					pruner.Start(ctx)
					defer pruner.Stop()
					a.logger.Info("journal retention enabled", "retention", a.cfg.Journal.Retention, "schedule", a.cfg.Journal.PruneSchedule)
				}
			}

			srv := &http.Server{
				Addr:              listen,
				Handler:           newServeMux(client.New(a.cfg.NewRunner(), opts...), collector, a.logger),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.logger.Info("serving", "addr", listen)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default: metrics.listen or "+defaultListen+")")
	return cmd
}

type callResponse struct {
	ID       string `json:"id,omitempty"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
	ExitCode int    `json:"exitCode,omitempty"`
}

func newServeMux(c *client.Client, m *metrics.Collector, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /v1/call/{target}", func(w http.ResponseWriter, r *http.Request) {
		target := r.PathValue("target")

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, security.MaxEncodedPayloadLength))
		if err != nil {
			respond(w, logger, http.StatusRequestEntityTooLarge, callResponse{Error: err.Error(), ExitCode: core.ExitConfiguration})
			return
		}
		payload, err := parsePayload(string(body))
		if err != nil {
			respond(w, logger, http.StatusBadRequest, callResponse{Error: err.Error(), ExitCode: core.ExitConfiguration})
			return
		}

		result, id, err := c.CallRecorded(r.Context(), target, payload)
		if err != nil {
			respond(w, logger, statusFor(err), callResponse{ID: id, Error: err.Error(), ExitCode: core.ExitCode(err)})
			return
		}
		respond(w, logger, http.StatusOK, callResponse{ID: id, Result: result})
	})
	return mux
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidTargetName), errors.Is(err, core.ErrTargetNameTooLong),
		errors.Is(err, core.ErrEncode):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTypeNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrBoundaryNotFound), errors.Is(err, core.ErrDecode),
		errors.Is(err, core.ErrInvocationType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func respond(w http.ResponseWriter, logger *slog.Logger, status int, body callResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("write response failed", "error", err)
	}
}
