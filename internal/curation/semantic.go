package curation

import (
	"context"
	"fmt"
	"math"
)

const DefaultSimilarityThreshold = 0.8

// Embedder is the externally supplied embedding capability. The pipeline
// never computes embeddings itself; it only consumes fixed-length vectors.
type Embedder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// CosineSimilarity compares two vectors and clamps the result into [0,1].
// Sentence-embedding cosines are non-negative in practice; anything below
// zero is treated as fully dissimilar rather than rescaled.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	default:
		return sim
	}
}

// RankingField selects how a duplicate group picks its survivor.
type RankingField string

const (
	// RankByTrust keeps the best-ranked source (the default pipeline pass).
	RankByTrust RankingField = "rank_infill"
	// RankByCompany keeps the lowest company id (the summary-dedup variant).
	RankByCompany RankingField = "company_id"
)

// DetectorOptions parameterizes both near-duplicate passes. The thresholds
// are inclusive: a similarity exactly at the threshold is a duplicate.
type DetectorOptions struct {
	TitleThreshold float64
	BodyThreshold  float64
	Ranking        RankingField
	// Reason tags internal-pass losers; defaults to internal_duplicate.
	// The summary-level pass runs the same detector with semantic_duplicate.
	Reason FilterReason
}

// Detector clusters near-duplicate articles by embedding similarity, within
// a batch and against historical curated records. Exact-match dedup cannot
// catch republished or paraphrased coverage of the same event; similarity
// generalizes across wording with the false-positive risk bounded by the
// thresholds.
type Detector struct {
	embedder Embedder
	opts     DetectorOptions
}

func NewDetector(embedder Embedder, opts DetectorOptions) *Detector {
	if opts.TitleThreshold <= 0 {
		opts.TitleThreshold = DefaultSimilarityThreshold
	}
	if opts.BodyThreshold <= 0 {
		opts.BodyThreshold = DefaultSimilarityThreshold
	}
	if opts.Ranking == "" {
		opts.Ranking = RankByTrust
	}
	if opts.Reason == "" {
		opts.Reason = ReasonInternalDuplicate
	}
	return &Detector{embedder: embedder, opts: opts}
}

// DedupWithin clusters the current batch only. Articles joined by a title or
// body similarity edge form one duplicate group; each group keeps a single
// survivor chosen by the configured ranking and rejects the rest.
func (d *Detector) DedupWithin(ctx context.Context, batch []Article) ([]Article, []RejectedArticle, error) {
	if len(batch) < 2 {
		return batch, nil, nil
	}

	titles := make([]string, len(batch))
	bodies := make([]string, len(batch))
	for i, a := range batch {
		titles[i] = a.Title
		bodies[i] = a.Body
	}

	titleVecs, err := d.embedder.Encode(ctx, titles)
	if err != nil {
		return nil, nil, fmt.Errorf("encode titles: %w", err)
	}
	bodyVecs, err := d.embedder.Encode(ctx, bodies)
	if err != nil {
		return nil, nil, fmt.Errorf("encode bodies: %w", err)
	}
	if len(titleVecs) != len(batch) || len(bodyVecs) != len(batch) {
		return nil, nil, fmt.Errorf("embedding count mismatch: batch=%d titles=%d bodies=%d", len(batch), len(titleVecs), len(bodyVecs))
	}

	groups := newUnionFind(len(batch))
	for i := 0; i < len(batch); i++ {
		for j := i + 1; j < len(batch); j++ {
			titleSim := CosineSimilarity(titleVecs[i], titleVecs[j])
			bodySim := CosineSimilarity(bodyVecs[i], bodyVecs[j])
			if titleSim >= d.opts.TitleThreshold || bodySim >= d.opts.BodyThreshold {
				groups.union(i, j)
			}
		}
	}

	survivorByRoot := make(map[int]int, len(batch))
	for i := range batch {
		root := groups.find(i)
		current, seen := survivorByRoot[root]
		if !seen || d.better(batch[i], batch[current]) {
			survivorByRoot[root] = i
		}
	}

	kept := make([]Article, 0, len(survivorByRoot))
	var rejected []RejectedArticle
	for i, a := range batch {
		if survivorByRoot[groups.find(i)] == i {
			kept = append(kept, a)
		} else {
			rejected = append(rejected, RejectedArticle{Article: a, Reason: d.opts.Reason})
		}
	}
	return kept, rejected, nil
}

// DedupAgainstHistory drops batch articles whose best body match against the
// historical window meets the threshold. History is never mutated.
func (d *Detector) DedupAgainstHistory(ctx context.Context, batch []Article, history []HistoricalRecord) ([]Article, []RejectedArticle, error) {
	if len(batch) == 0 || len(history) == 0 {
		return batch, nil, nil
	}

	bodies := make([]string, len(batch))
	for i, a := range batch {
		bodies[i] = a.Body
	}
	historical := make([]string, len(history))
	for i, h := range history {
		historical[i] = h.Body
	}

	batchVecs, err := d.embedder.Encode(ctx, bodies)
	if err != nil {
		return nil, nil, fmt.Errorf("encode batch bodies: %w", err)
	}
	historyVecs, err := d.embedder.Encode(ctx, historical)
	if err != nil {
		return nil, nil, fmt.Errorf("encode historical bodies: %w", err)
	}
	if len(batchVecs) != len(batch) || len(historyVecs) != len(history) {
		return nil, nil, fmt.Errorf("embedding count mismatch: batch=%d/%d history=%d/%d", len(batch), len(batchVecs), len(history), len(historyVecs))
	}

	kept := make([]Article, 0, len(batch))
	var rejected []RejectedArticle
	for i, a := range batch {
		best := 0.0
		for j := range historyVecs {
			if sim := CosineSimilarity(batchVecs[i], historyVecs[j]); sim > best {
				best = sim
			}
		}
		if best >= d.opts.BodyThreshold {
			rejected = append(rejected, RejectedArticle{Article: a, Reason: ReasonHistoricalDuplicate})
		} else {
			kept = append(kept, a)
		}
	}
	return kept, rejected, nil
}

func (d *Detector) better(a, b Article) bool {
	if d.opts.Ranking == RankByCompany {
		if a.CompanyID != b.CompanyID {
			return a.CompanyID < b.CompanyID
		}
		return a.ID < b.ID
	}
	return LessByRank(a, b)
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(i, j int) {
	ri, rj := u.find(i), u.find(j)
	if ri == rj {
		return
	}
	if ri < rj {
		u.parent[rj] = ri
	} else {
		u.parent[ri] = rj
	}
}
