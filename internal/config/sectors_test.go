package config

import (
	"errors"
	"strings"
	"testing"
)

func TestResolveSectorProductionTables(t *testing.T) {
	t.Parallel()

	res, err := ResolveSector("banking", false)
	if err != nil {
		t.Fatalf("ResolveSector: %v", err)
	}
	if res.RawTable != "raw_news.banking_articles" {
		t.Fatalf("RawTable = %q", res.RawTable)
	}
	if res.StageTable != "curated.banking_articles_staging" {
		t.Fatalf("StageTable = %q", res.StageTable)
	}
	if res.MergeTable != "curated.banking_articles" {
		t.Fatalf("MergeTable = %q", res.MergeTable)
	}
	if res.QAFiltered != "curated.banking_filtered_articles_qa" {
		t.Fatalf("QAFiltered = %q", res.QAFiltered)
	}
	if res.RunsTable != "curated.curation_runs" {
		t.Fatalf("RunsTable = %q", res.RunsTable)
	}
	if res.Sector.Pillar == "" || len(res.Sector.Companies) == 0 {
		t.Fatalf("sector metadata incomplete: %+v", res.Sector)
	}
}

func TestResolveSectorTestRunRoutesToTemporary(t *testing.T) {
	t.Parallel()

	res, err := ResolveSector("banking", true)
	if err != nil {
		t.Fatalf("ResolveSector: %v", err)
	}
	for name, table := range map[string]string{
		"raw":    res.RawTable,
		"stage":  res.StageTable,
		"merge":  res.MergeTable,
		"qa":     res.QAFiltered,
		"qakept": res.QAKept,
		"runs":   res.RunsTable,
	} {
		if !strings.HasPrefix(table, "temporary.") {
			t.Fatalf("%s table %q is not routed to the temporary namespace", name, table)
		}
	}
}

func TestResolveSectorNormalizesName(t *testing.T) {
	t.Parallel()

	res, err := ResolveSector("  Banking ", false)
	if err != nil {
		t.Fatalf("ResolveSector should normalize case and whitespace: %v", err)
	}
	if res.Sector.Name != "banking" {
		t.Fatalf("Sector.Name = %q, want banking", res.Sector.Name)
	}
}

func TestResolveSectorUnknown(t *testing.T) {
	t.Parallel()

	_, err := ResolveSector("forestry", false)
	if err == nil {
		t.Fatal("unknown sector must fail before any I/O")
	}
	var sectorErr *SectorError
	if !errors.As(err, &sectorErr) {
		t.Fatalf("expected SectorError, got %v", err)
	}
	if len(sectorErr.Known) == 0 {
		t.Fatal("SectorError should carry the known sector names")
	}
}

func TestKnownSectorsSorted(t *testing.T) {
	t.Parallel()

	names, err := KnownSectors()
	if err != nil {
		t.Fatalf("KnownSectors: %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected multiple configured sectors, got %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("sector names not sorted: %v", names)
		}
	}
}
