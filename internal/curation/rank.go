package curation

// RankInfill computes the trust rank used as the tie-break key across every
// duplicate-resolution stage. Top-tier sources collapse to 1; everything else
// shifts down one slot so a recognized outlet always beats an unranked one.
// Lower is better.
func RankInfill(a Article) int {
	if a.IsTopTier {
		return 1
	}
	return a.SourceImportanceRank + 1
}

// LessByRank is the total, deterministic survivor ordering: rank infill, then
// raw source importance rank, then article id. The id tiebreaker makes the
// choice reproducible even when two sources share both rank keys.
func LessByRank(a, b Article) bool {
	ra, rb := RankInfill(a), RankInfill(b)
	if ra != rb {
		return ra < rb
	}
	if a.SourceImportanceRank != b.SourceImportanceRank {
		return a.SourceImportanceRank < b.SourceImportanceRank
	}
	return a.ID < b.ID
}
