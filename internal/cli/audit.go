package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/patdav1503/securelog-msg-network/internal/engine"
	"github.com/patdav1503/securelog-msg-network/internal/eventlog"
	"github.com/patdav1503/securelog-msg-network/internal/metrics"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Follow      bool
	MetricsAddr string

	// listening, when set, receives the bound metrics address. Used by tests.
	listening chan<- string
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Verify the event hash chain",
		Long: `Recompute the hash chain of the event log and report the first break.

With --follow the command keeps verifying events as they are committed
and, with --metrics-addr, serves Prometheus metrics on /metrics.

Exit codes:
  0 - Chain intact
  1 - Chain broken
  2 - Command error

Examples:
  securelog audit
  securelog audit --follow --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Follow, "follow", false, "keep verifying new events")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default $SECURELOG_METRICS_ADDR)")

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	addr := opts.MetricsAddr
	if addr == "" {
		addr = opts.Config.MetricsAddr
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	s, err := opts.openSession(cmd.Context(), engine.WithMetrics(rec))
	if err != nil {
		return err
	}
	defer s.close()

	if !opts.Follow {
		report, err := s.engine.Verify(cmd.Context())
		if err != nil {
			return out.Fail(err)
		}
		return out.Emit(report, func(w io.Writer) {
			fmt.Fprintf(w, "Chain intact: %d events, head %s\n", report.Events, headOrNone(report.Head))
		})
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if addr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, addr, reg, opts)
		})
	}
	g.Go(func() error {
		return followChain(ctx, s.engine, rec, out)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return out.Fail(err)
	}
	return nil
}

// followChain verifies every event from the start of the log and then
// each new one as it is committed.
func followChain(ctx context.Context, eng *engine.Engine, rec *metrics.Recorder, out *OutputFormatter) error {
	sub, err := eng.SubscribeEvents(ctx, 0)
	if err != nil {
		return err
	}
	defer sub.Close()

	var v eventlog.Verifier
	for e, err := range sub.All(ctx) {
		if err != nil {
			return err
		}
		if err := v.Check(e); err != nil {
			rec.AuditBreak()
			return err
		}
		rec.AuditVerified(1, v.Seq())
		out.VerboseLog("verified seq %d %s", e.Seq, e.Kind)
	}
	return ctx.Err()
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, opts *AuditOptions) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen for metrics", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	opts.Logger().Info("serving metrics", "addr", ln.Addr().String())
	if opts.listening != nil {
		opts.listening <- ln.Addr().String()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func headOrNone(hash string) string {
	if hash == "" {
		return "(none)"
	}
	return hash
}
