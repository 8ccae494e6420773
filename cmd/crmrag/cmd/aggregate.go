package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/output"
	"github.com/Aman-CERP/crmrag/internal/store"
)

type aggregateOptions struct {
	damping       float64
	tolerance     float64
	maxIterations int
	top           int
	dryRun        bool
}

func newAggregateCmd(root *rootOptions) *cobra.Command {
	def := corpus.DefaultPageRankOptions()
	opts := aggregateOptions{
		damping:       def.Damping,
		tolerance:     def.Tolerance,
		maxIterations: def.MaxIterations,
		top:           3,
	}

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Recompute per-category centrality in the artifact",
		Long: `Recompute the PageRank centrality of every document over the graph the
triples form and store the per-category rankings in the artifact. Running
engines pick the new rankings up on reload.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAggregate(cmd.Context(), cmd, root, opts)
		},
	}

	cmd.Flags().Float64Var(&opts.damping, "damping", opts.damping, "PageRank damping factor")
	cmd.Flags().Float64Var(&opts.tolerance, "tolerance", opts.tolerance, "L1 convergence tolerance")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", opts.maxIterations, "Iteration limit")
	cmd.Flags().IntVar(&opts.top, "top", opts.top, "Documents to show per category")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Compute and show without writing")

	return cmd
}

func runAggregate(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts aggregateOptions) error {
	if opts.damping <= 0 || opts.damping >= 1 {
		return fmt.Errorf("--damping must be in (0,1), got %v", opts.damping)
	}
	if opts.tolerance <= 0 || opts.maxIterations < 1 {
		return fmt.Errorf("--tolerance must be positive and --max-iterations at least 1")
	}

	start := time.Now()
	path := root.cfg.Artifact.Path
	artifact, err := store.ReadArtifact(ctx, path)
	if err != nil {
		return err
	}

	docs, err := corpus.NewStore(artifact.Documents)
	if err != nil {
		return err
	}
	triples := corpus.NewTriplesIndex(artifact.Triples)
	agg := corpus.BuildAggregationIndex(docs, triples, corpus.PageRankOptions{
		Damping:       opts.damping,
		Tolerance:     opts.tolerance,
		MaxIterations: opts.maxIterations,
	})

	artifact.Aggregation = agg.Entries()
	if !opts.dryRun {
		if err := store.WriteArtifact(ctx, path, artifact); err != nil {
			return err
		}
	}

	slog.Info("aggregation_complete",
		slog.String("path", path),
		slog.Int("entities", agg.EntityCount()),
		slog.Bool("dry_run", opts.dryRun),
		slog.Duration("duration", time.Since(start)))

	output.New(cmd.OutOrStdout()).Summary(summarize(path, artifact, docs, triples, agg, opts.top))
	return nil
}
