package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/output"
	"github.com/Aman-CERP/crmrag/internal/store"
)

func newInspectCmd(root *rootOptions) *cobra.Command {
	var top int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show corpus, category and centrality counts of the artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInspect(cmd.Context(), cmd, root.cfg.Artifact.Path, top, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&top, "top", 3, "Most central documents to show per category")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runInspect(ctx context.Context, cmd *cobra.Command, path string, top int, jsonOutput bool) error {
	artifact, err := store.ReadArtifact(ctx, path)
	if err != nil {
		return err
	}
	docs, err := corpus.NewStore(artifact.Documents)
	if err != nil {
		return err
	}
	triples := corpus.NewTriplesIndex(artifact.Triples)
	agg := corpus.NewAggregationIndex(artifact.Aggregation)

	summary := summarize(path, artifact, docs, triples, agg, top)
	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(summary)
	}
	out.Summary(summary)
	return nil
}

// summarize counts documents and ranked entries per category and lists
// the top entries of each.
func summarize(path string, a *store.Artifact, docs *corpus.Store, triples *corpus.TriplesIndex, agg *corpus.AggregationIndex, top int) output.CorpusSummary {
	s := output.CorpusSummary{
		Path:       path,
		Model:      a.EmbeddingModel,
		Dimension:  docs.Dimension(),
		Documents:  docs.Len(),
		Triples:    triples.Len(),
		Categories: make(map[string]int),
		Ranked:     make(map[string]int),
	}
	for _, d := range docs.Documents() {
		s.Categories[d.Category.String()]++
	}
	for _, c := range corpus.AllCategories() {
		if n := agg.CategoryCount(c); n > 0 {
			s.Ranked[c.String()] = n
		}
		if top <= 0 {
			continue
		}
		for _, e := range agg.Top(corpus.NewCategorySet(c), top) {
			s.Top = append(s.Top, output.TopEntry{Category: c.String(), DocID: e.DocID, Centrality: e.Centrality})
		}
	}
	return s
}
