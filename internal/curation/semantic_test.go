package curation

import (
	"context"
	"fmt"
	"testing"
)

// stubEmbedder returns a fixed vector per text so tests control similarity
// geometry exactly.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := s.vectors[text]
		if !ok {
			return nil, fmt.Errorf("no stub vector for %q", text)
		}
		out[i] = vec
	}
	return out, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Encode(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("embedding service unavailable")
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite clamps to zero", []float32{1, 0}, []float32{-1, 0}, 0},
		{"exact four fifths", []float32{1, 0}, []float32{4, 3}, 0.8},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tc := range cases {
		if got := CosineSimilarity(tc.a, tc.b); got != tc.want {
			t.Fatalf("%s: CosineSimilarity = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDedupWithinThresholdIsInclusive(t *testing.T) {
	t.Parallel()

	// Title cosine between the pair is exactly 0.8; bodies are orthogonal.
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"title one": {1, 0},
		"title two": {4, 3},
		"body one":  {1, 0},
		"body two":  {0, 1},
	}}
	detector := NewDetector(embedder, DetectorOptions{TitleThreshold: 0.8, BodyThreshold: 0.8})

	batch := []Article{
		{ID: "a", Title: "title one", Body: "body one", IsTopTier: true},
		{ID: "b", Title: "title two", Body: "body two", SourceImportanceRank: 5, IsTopTier: true},
	}

	kept, rejected, err := detector.DedupWithin(context.Background(), batch)
	if err != nil {
		t.Fatalf("DedupWithin: %v", err)
	}
	if len(kept) != 1 || len(rejected) != 1 {
		t.Fatalf("similarity exactly at the threshold must deduplicate: kept=%d rejected=%d", len(kept), len(rejected))
	}
	if kept[0].ID != "a" {
		t.Fatalf("survivor should be the better-ranked article, got %q", kept[0].ID)
	}
	if rejected[0].Reason != ReasonInternalDuplicate {
		t.Fatalf("reason = %q, want %q", rejected[0].Reason, ReasonInternalDuplicate)
	}
}

func TestDedupWithinTransitiveClusters(t *testing.T) {
	t.Parallel()

	// a~b and b~c by body similarity, a and c dissimilar: one survivor for all three.
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"ta": {1, 0, 0}, "tb": {0, 1, 0}, "tc": {0, 0, 1},
		"ba": {1, 1, 0}, "bb": {0, 1, 0}, "bc": {0, 1, 1},
	}}
	detector := NewDetector(embedder, DetectorOptions{TitleThreshold: 0.99, BodyThreshold: 0.7})

	batch := []Article{
		{ID: "a", Title: "ta", Body: "ba", IsTopTier: true},
		{ID: "b", Title: "tb", Body: "bb", IsTopTier: true, SourceImportanceRank: 1},
		{ID: "c", Title: "tc", Body: "bc", IsTopTier: true, SourceImportanceRank: 2},
	}

	kept, rejected, err := detector.DedupWithin(context.Background(), batch)
	if err != nil {
		t.Fatalf("DedupWithin: %v", err)
	}
	if len(kept) != 1 {
		t.Fatalf("transitively linked trio should keep one survivor, kept %d", len(kept))
	}
	if kept[0].ID != "a" {
		t.Fatalf("survivor = %q, want best-ranked %q", kept[0].ID, "a")
	}
	if len(rejected) != 2 {
		t.Fatalf("rejected = %d, want 2", len(rejected))
	}
}

func TestDedupWithinNoPairsBelowThreshold(t *testing.T) {
	t.Parallel()

	embedder := &stubEmbedder{vectors: map[string][]float32{
		"t1": {1, 0}, "t2": {0, 1},
		"b1": {1, 0}, "b2": {0, 1},
	}}
	detector := NewDetector(embedder, DetectorOptions{})

	batch := []Article{
		{ID: "a", Title: "t1", Body: "b1"},
		{ID: "b", Title: "t2", Body: "b2"},
	}
	kept, rejected, err := detector.DedupWithin(context.Background(), batch)
	if err != nil {
		t.Fatalf("DedupWithin: %v", err)
	}
	if len(kept) != 2 || len(rejected) != 0 {
		t.Fatalf("dissimilar batch must pass untouched: kept=%d rejected=%d", len(kept), len(rejected))
	}
}

func TestDedupWithinSingletonSkipsEmbedding(t *testing.T) {
	t.Parallel()

	detector := NewDetector(failingEmbedder{}, DetectorOptions{})
	batch := []Article{{ID: "only"}}
	kept, rejected, err := detector.DedupWithin(context.Background(), batch)
	if err != nil {
		t.Fatalf("singleton batch must not call the embedder: %v", err)
	}
	if len(kept) != 1 || len(rejected) != 0 {
		t.Fatalf("singleton batch should pass through, kept=%d rejected=%d", len(kept), len(rejected))
	}
}

func TestDedupWithinPropagatesEmbedderError(t *testing.T) {
	t.Parallel()

	detector := NewDetector(failingEmbedder{}, DetectorOptions{})
	batch := []Article{{ID: "a", Title: "x", Body: "y"}, {ID: "b", Title: "p", Body: "q"}}
	if _, _, err := detector.DedupWithin(context.Background(), batch); err == nil {
		t.Fatal("embedder failure must fail the pass, not silently keep everything")
	}
}

func TestDedupWithinCompanyRankingVariant(t *testing.T) {
	t.Parallel()

	embedder := &stubEmbedder{vectors: map[string][]float32{
		"t1": {1, 0}, "t2": {1, 0},
		"b1": {1, 0}, "b2": {1, 0},
	}}
	detector := NewDetector(embedder, DetectorOptions{
		Ranking: RankByCompany,
		Reason:  ReasonSemanticDuplicate,
	})

	batch := []Article{
		{ID: "a", CompanyID: 9, Title: "t1", Body: "b1", IsTopTier: true},
		{ID: "b", CompanyID: 2, Title: "t2", Body: "b2", SourceImportanceRank: 50},
	}

	kept, rejected, err := detector.DedupWithin(context.Background(), batch)
	if err != nil {
		t.Fatalf("DedupWithin: %v", err)
	}
	if len(kept) != 1 || kept[0].ID != "b" {
		t.Fatalf("company ranking should keep the lowest company id, got %+v", kept)
	}
	if len(rejected) != 1 || rejected[0].Reason != ReasonSemanticDuplicate {
		t.Fatalf("variant losers must carry %q, got %+v", ReasonSemanticDuplicate, rejected)
	}
}

func TestDedupAgainstHistory(t *testing.T) {
	t.Parallel()

	embedder := &stubEmbedder{vectors: map[string][]float32{
		"fresh body":     {0, 1},
		"recycled body":  {1, 0},
		"archived body":  {1, 0},
		"unrelated hist": {0.1, 0.1},
	}}
	detector := NewDetector(embedder, DetectorOptions{BodyThreshold: 0.9})

	batch := []Article{
		{ID: "fresh", Body: "fresh body"},
		{ID: "recycled", Body: "recycled body"},
	}
	history := []HistoricalRecord{
		{ID: "h1", Body: "archived body"},
		{ID: "h2", Body: "unrelated hist"},
	}

	kept, rejected, err := detector.DedupAgainstHistory(context.Background(), batch, history)
	if err != nil {
		t.Fatalf("DedupAgainstHistory: %v", err)
	}
	if len(kept) != 1 || kept[0].ID != "fresh" {
		t.Fatalf("expected only %q to survive, got %+v", "fresh", kept)
	}
	if len(rejected) != 1 || rejected[0].Reason != ReasonHistoricalDuplicate {
		t.Fatalf("expected one %q rejection, got %+v", ReasonHistoricalDuplicate, rejected)
	}
}

func TestDedupAgainstHistoryEmptyHistory(t *testing.T) {
	t.Parallel()

	detector := NewDetector(failingEmbedder{}, DetectorOptions{})
	batch := []Article{{ID: "a", Body: "x"}}
	kept, rejected, err := detector.DedupAgainstHistory(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("empty history must not call the embedder: %v", err)
	}
	if len(kept) != 1 || len(rejected) != 0 {
		t.Fatalf("empty history should pass batch through, kept=%d rejected=%d", len(kept), len(rejected))
	}
}
