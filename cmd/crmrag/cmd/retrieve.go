package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/crmrag/internal/errors"
	"github.com/Aman-CERP/crmrag/internal/output"
	"github.com/Aman-CERP/crmrag/internal/retrieval"
)

type retrieveOptions struct {
	history []string
	k       int
	qtype   string
	targets []string
	format  string
	verbose bool
}

func newRetrieveCmd(root *rootOptions) *cobra.Command {
	var opts retrieveOptions

	cmd := &cobra.Command{
		Use:   "retrieve <question>",
		Short: "Retrieve the documents that answer a question",
		Long: `Retrieve the documents that best answer a question.

Prior turns passed with --history let follow-up questions resolve against
the conversation. --type and --target bypass the query analyzer.

Examples:
  crmrag retrieve "Who painted The Night Watch?"
  crmrag retrieve "Which paintings are in Amsterdam?" -k 15
  crmrag retrieve "and where is it now?" --history "Who painted The Night Watch?"
  crmrag retrieve "most central artists" --type AGGREGATION --target Actor --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runRetrieve(cmd.Context(), cmd, root, query, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.history, "history", nil, "Prior conversation turn, oldest first (repeatable)")
	cmd.Flags().IntVarP(&opts.k, "k", "k", 0, "Number of documents (default depends on query type)")
	cmd.Flags().StringVarP(&opts.qtype, "type", "t", "", "Query type: SPECIFIC, ENUMERATION, AGGREGATION")
	cmd.Flags().StringSliceVar(&opts.targets, "target", nil, "Target category (repeatable, e.g. Actor)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show triples and diagnostics")

	return cmd
}

func runRetrieve(ctx context.Context, cmd *cobra.Command, root *rootOptions, query string, opts retrieveOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (use text or json)", opts.format)
	}
	if opts.k < 0 {
		return fmt.Errorf("-k must not be negative, got %d", opts.k)
	}
	analysis, err := requestAnalysis(opts.qtype, opts.targets)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	res, err := retrieve(ctx, root, retrieval.Request{
		Query:    query,
		History:  opts.history,
		K:        opts.k,
		Analysis: analysis,
	})
	if err != nil {
		if opts.format == "json" {
			return writeJSONError(cmd, err)
		}
		return err
	}

	if opts.format == "json" {
		return out.JSON(res)
	}
	out.Result(res, opts.verbose)
	return nil
}

func retrieve(ctx context.Context, root *rootOptions, req retrieval.Request) (*retrieval.Result, error) {
	stack, err := newEngineStack(ctx, root.cfg, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = stack.Close() }()

	snap, err := stack.load(ctx, root.cfg.Artifact.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = snap.Close() }()

	res, err := snap.Engine.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	slog.Info("retrieve_complete",
		slog.String("query_id", res.QueryID),
		slog.Int("documents", len(res.Documents)))
	return res, nil
}

// writeJSONError prints err as a JSON object on stdout so scripted callers
// get one format for both outcomes.
func writeJSONError(cmd *cobra.Command, err error) error {
	data, jerr := errors.FormatJSON(err)
	if jerr != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return reportedError{err}
}
