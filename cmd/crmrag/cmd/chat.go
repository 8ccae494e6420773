package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/Aman-CERP/crmrag/internal/errors"
	"github.com/Aman-CERP/crmrag/internal/output"
	"github.com/Aman-CERP/crmrag/internal/retrieval"
	"github.com/Aman-CERP/crmrag/internal/snapshot"
	"github.com/Aman-CERP/crmrag/internal/telemetry"
)

// maxChatHistory bounds the turns kept for follow-up resolution.
const maxChatHistory = 10

type chatOptions struct {
	k       int
	verbose bool
	watch   bool
	metrics bool
}

func newChatCmd(root *rootOptions) *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively, with follow-ups",
		Long: `Read questions from stdin, one per line, and retrieve documents for each.
Earlier questions form the conversation history, so follow-ups such as
"and where is it now?" resolve against them. Type /reset to clear the
history and /quit to exit.

With --watch the artifact is reloaded when it changes on disk. With
--metrics Prometheus metrics are served on metrics.address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("watch") {
				root.cfg.Artifact.Watch = opts.watch
			}
			if cmd.Flags().Changed("metrics") {
				root.cfg.Metrics.Enabled = opts.metrics
			}
			return runChat(cmd.Context(), cmd, root, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.k, "k", "k", 0, "Number of documents per answer")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show triples and diagnostics")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload the artifact when it changes")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Serve Prometheus metrics")

	return cmd
}

func runChat(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts chatOptions) error {
	cfg := root.cfg

	var metrics *telemetry.RetrievalMetrics
	var recorder retrieval.Recorder
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewRetrievalMetrics()
		recorder = metrics
	}

	stack, err := newEngineStack(ctx, cfg, recorder)
	if err != nil {
		return err
	}
	defer func() { _ = stack.Close() }()

	path := cfg.Artifact.Path
	initial, err := stack.load(ctx, path)
	if err != nil {
		return err
	}
	holder := snapshot.NewHolder(initial)
	defer func() { _ = holder.Current().Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Artifact.Watch {
		w := snapshot.NewWatcher(holder, path, func(ctx context.Context) (*snapshot.Snapshot, error) {
			return stack.load(ctx, path)
		})
		w.SetDebounce(cfg.Artifact.WatchDebounce)
		g.Go(func() error { return w.Run(gctx) })
	}

	if metrics != nil {
		srv := &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           metricsMux(metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("metrics_listening", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return chatLoop(gctx, cmd.InOrStdin(), output.New(cmd.OutOrStdout()), holder, opts)
	})

	return g.Wait()
}

func metricsMux(m *telemetry.RetrievalMetrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// chatLoop answers one question per input line until EOF, /quit or
// cancellation. Retrieval errors are printed and the loop continues.
func chatLoop(ctx context.Context, in io.Reader, out *output.Writer, holder *snapshot.Holder, opts chatOptions) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	var history []string
	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			history = nil
			out.Warning("history cleared")
			continue
		}

		engine := holder.Current().Engine
		res, err := engine.Retrieve(ctx, retrieval.Request{Query: line, History: history, K: opts.k})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			out.Error(strings.TrimSpace(apperrors.FormatForCLI(err)))
			continue
		}
		out.Result(res, opts.verbose)

		history = append(history, line)
		if len(history) > maxChatHistory {
			history = history[len(history)-maxChatHistory:]
		}
	}
}
