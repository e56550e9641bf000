package curation

import "sort"

// CanonicalResult splits a batch into the canonical survivors and the rows
// dropped before QA bookkeeping begins. Duplicate losers and sub-threshold
// sources are excluded by source trust, not classified as duplicates, so they
// carry no filter reason.
type CanonicalResult struct {
	Survivors []Article
	Dropped   []Article
}

// ResolveCanonical removes exact duplicate keys in two passes (URL, then
// title), keeping the best-ranked row of each partition, then retains only
// rows whose rank infill is 1. The outcome is independent of input order:
// partitions are resolved with the LessByRank total ordering and survivors
// are returned sorted by it.
func ResolveCanonical(batch []Article) CanonicalResult {
	if len(batch) == 0 {
		return CanonicalResult{}
	}

	var result CanonicalResult

	byURL := keepBestPerKey(batch, func(a Article) string { return a.URL }, &result.Dropped)
	byTitle := keepBestPerKey(byURL, func(a Article) string { return a.Title }, &result.Dropped)

	survivors := make([]Article, 0, len(byTitle))
	for _, a := range byTitle {
		if RankInfill(a) == 1 {
			survivors = append(survivors, a)
		} else {
			result.Dropped = append(result.Dropped, a)
		}
	}

	sort.Slice(survivors, func(i, j int) bool { return LessByRank(survivors[i], survivors[j]) })
	result.Survivors = survivors
	return result
}

func keepBestPerKey(batch []Article, key func(Article) string, dropped *[]Article) []Article {
	best := make(map[string]Article, len(batch))
	for _, a := range batch {
		current, seen := best[key(a)]
		if !seen {
			best[key(a)] = a
			continue
		}
		if LessByRank(a, current) {
			*dropped = append(*dropped, current)
			best[key(a)] = a
		} else {
			*dropped = append(*dropped, a)
		}
	}

	kept := make([]Article, 0, len(best))
	for _, a := range best {
		kept = append(kept, a)
	}
	sort.Slice(kept, func(i, j int) bool { return LessByRank(kept[i], kept[j]) })
	return kept
}
