//go:build ignore

// Package main generates a synthetic artifact for benchmarking retrieval.
// Usage: go run scripts/generate-test-artifact.go -docs 5000 -output testdata/bench.db
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/embed"
	"github.com/Aman-CERP/crmrag/internal/store"
)

var (
	numDocs   = flag.Int("docs", 5000, "Number of documents to generate")
	fanout    = flag.Int("fanout", 4, "Average triples per document")
	dims      = flag.Int("dims", 256, "Embedding dimension (static embedder)")
	outputArg = flag.String("output", "testdata/bench.db", "Artifact path")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var (
	nouns = []string{"portrait", "landscape", "altarpiece", "etching", "fresco", "manuscript", "vase", "tapestry"}
	names = []string{"Vermeer", "Rembrandt", "Hals", "Steen", "Ruisdael", "Leyster", "Avercamp", "Potter"}
	towns = []string{"Amsterdam", "Delft", "Haarlem", "Leiden", "Utrecht", "Antwerp", "Bruges", "Ghent"}

	predicates = []string{
		"P14_carried_out_by", "P108i_was_produced_by", "P55_has_current_location",
		"P7_took_place_at", "P4_has_time-span", "P2_has_type", "P1_is_identified_by", "P89_falls_within",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))
	embedder := embed.NewStaticEmbedder(*dims)
	ctx := context.Background()

	cats := corpus.AllCategories()
	docs := make([]corpus.Document, *numDocs)
	texts := make([]string, *numDocs)
	for i := range docs {
		cat := cats[rng.Intn(len(cats))]
		texts[i] = fmt.Sprintf("%s %s of %s, %s", cat, nouns[rng.Intn(len(nouns))],
			names[rng.Intn(len(names))], towns[rng.Intn(len(towns))])
		docs[i] = corpus.Document{
			ID:       fmt.Sprintf("urn:bench:%06d", i),
			Text:     texts[i],
			Category: cat,
		}
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "embed: %v\n", err)
		os.Exit(1)
	}
	for i := range docs {
		docs[i].Embedding = vectors[i]
	}

	var triples []corpus.Triple
	for i := range docs {
		for j := 0; j < rng.Intn(2**fanout+1); j++ {
			k := rng.Intn(len(docs))
			if k == i {
				continue
			}
			triples = append(triples, corpus.Triple{
				Subject:   docs[i].ID,
				Predicate: predicates[rng.Intn(len(predicates))],
				Object:    docs[k].ID,
			})
			docs[i].RawTripleCount++
			docs[k].RawTripleCount++
		}
	}

	a := &store.Artifact{EmbeddingModel: embedder.ModelName(), Documents: docs, Triples: triples}
	cs, err := corpus.NewStore(docs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store: %v\n", err)
		os.Exit(1)
	}
	agg := corpus.BuildAggregationIndex(cs, corpus.NewTriplesIndex(triples), corpus.DefaultPageRankOptions())
	a.Aggregation = agg.Entries()

	if err := store.WriteArtifact(ctx, *outputArg, a); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %d documents and %d triples in %s\n", len(docs), len(triples), *outputArg)
}
