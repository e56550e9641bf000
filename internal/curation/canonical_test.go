package curation

import "testing"

func TestResolveCanonicalEmptyBatch(t *testing.T) {
	t.Parallel()

	result := ResolveCanonical(nil)
	if len(result.Survivors) != 0 || len(result.Dropped) != 0 {
		t.Fatalf("empty batch should resolve to empty result, got %d survivors %d dropped", len(result.Survivors), len(result.Dropped))
	}
}

func TestResolveCanonicalKeepsBestRankedPerURL(t *testing.T) {
	t.Parallel()

	batch := []Article{
		{ID: "low", URL: "https://example.com/story", Title: "story a", SourceImportanceRank: 0},
		{ID: "top", URL: "https://example.com/story", Title: "story b", IsTopTier: true, SourceImportanceRank: 40},
	}

	result := ResolveCanonical(batch)
	if len(result.Survivors) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(result.Survivors))
	}
	if result.Survivors[0].ID != "top" {
		t.Fatalf("expected top-tier source to survive url dedup, got %q", result.Survivors[0].ID)
	}
}

func TestResolveCanonicalDedupsTitleAfterURL(t *testing.T) {
	t.Parallel()

	batch := []Article{
		{ID: "a", URL: "https://one.example/x", Title: "same headline", IsTopTier: true},
		{ID: "b", URL: "https://two.example/y", Title: "same headline", IsTopTier: true, SourceImportanceRank: 9},
	}

	result := ResolveCanonical(batch)
	if len(result.Survivors) != 1 {
		t.Fatalf("expected 1 survivor after title dedup, got %d", len(result.Survivors))
	}
	if result.Survivors[0].ID != "a" {
		t.Fatalf("expected better raw rank to survive title dedup, got %q", result.Survivors[0].ID)
	}
}

func TestResolveCanonicalRetainsOnlyInfillOne(t *testing.T) {
	t.Parallel()

	batch := []Article{
		{ID: "trusted", URL: "https://a.example/1", Title: "t1", IsTopTier: true},
		{ID: "untrusted", URL: "https://b.example/2", Title: "t2", SourceImportanceRank: 4},
	}

	result := ResolveCanonical(batch)
	if len(result.Survivors) != 1 || result.Survivors[0].ID != "trusted" {
		t.Fatalf("only rank-infill 1 rows should survive, got %+v", result.Survivors)
	}
	if len(result.Dropped) != 1 || result.Dropped[0].ID != "untrusted" {
		t.Fatalf("sub-threshold source should be in Dropped, got %+v", result.Dropped)
	}
}

func TestResolveCanonicalNeverLosesRows(t *testing.T) {
	t.Parallel()

	batch := []Article{
		{ID: "a", URL: "https://a.example", Title: "ta", IsTopTier: true},
		{ID: "b", URL: "https://a.example", Title: "tb", IsTopTier: true, SourceImportanceRank: 2},
		{ID: "c", URL: "https://c.example", Title: "ta", IsTopTier: true, SourceImportanceRank: 3},
		{ID: "d", URL: "https://d.example", Title: "td", SourceImportanceRank: 8},
	}

	result := ResolveCanonical(batch)
	if got := len(result.Survivors) + len(result.Dropped); got != len(batch) {
		t.Fatalf("survivors+dropped = %d, want %d: every input row must be accounted for", got, len(batch))
	}
}

func TestResolveCanonicalOrderIndependent(t *testing.T) {
	t.Parallel()

	forward := []Article{
		{ID: "a", URL: "https://a.example", Title: "t", IsTopTier: true},
		{ID: "b", URL: "https://a.example", Title: "t", IsTopTier: true, SourceImportanceRank: 1},
		{ID: "c", URL: "https://c.example", Title: "u", IsTopTier: true},
	}
	reversed := []Article{forward[2], forward[1], forward[0]}

	r1 := ResolveCanonical(forward)
	r2 := ResolveCanonical(reversed)
	if len(r1.Survivors) != len(r2.Survivors) {
		t.Fatalf("survivor counts differ by input order: %d vs %d", len(r1.Survivors), len(r2.Survivors))
	}
	for i := range r1.Survivors {
		if r1.Survivors[i].ID != r2.Survivors[i].ID {
			t.Fatalf("survivor %d differs by input order: %q vs %q", i, r1.Survivors[i].ID, r2.Survivors[i].ID)
		}
	}
}
