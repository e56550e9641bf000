package config

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed sectors.yaml
var sectorsYAML []byte

// SectorError reports an unrecognized sector before any I/O happens.
type SectorError struct {
	Sector string
	Known  []string
}

func (e *SectorError) Error() string {
	return fmt.Sprintf("unknown sector %q (known: %s)", e.Sector, strings.Join(e.Known, ", "))
}

// Sector describes one curated sector: its pillar label and the companies
// whose coverage the relevance classifier and mention features key on.
type Sector struct {
	Name      string   `yaml:"name"`
	Pillar    string   `yaml:"pillar"`
	Companies []string `yaml:"companies"`
}

// Resources holds the fully resolved table names for one sector. test_run
// routing swaps every table into the temporary namespace so production data
// is never touched.
type Resources struct {
	Sector     Sector
	RawTable   string
	StageTable string
	MergeTable string
	QAFiltered string
	QAKept     string
	RunsTable  string
}

type sectorsFile struct {
	Sectors []Sector `yaml:"sectors"`
}

var (
	registryOnce sync.Once
	registry     map[string]Sector
	registryErr  error
)

func loadRegistry() (map[string]Sector, error) {
	registryOnce.Do(func() {
		var parsed sectorsFile
		if err := yaml.Unmarshal(sectorsYAML, &parsed); err != nil {
			registryErr = fmt.Errorf("parse embedded sectors.yaml: %w", err)
			return
		}
		if len(parsed.Sectors) == 0 {
			registryErr = fmt.Errorf("sectors.yaml defines no sectors")
			return
		}

		byName := make(map[string]Sector, len(parsed.Sectors))
		for _, s := range parsed.Sectors {
			name := strings.TrimSpace(strings.ToLower(s.Name))
			if name == "" {
				registryErr = fmt.Errorf("sectors.yaml contains a sector with no name")
				return
			}
			if _, exists := byName[name]; exists {
				registryErr = fmt.Errorf("sectors.yaml defines sector %q twice", name)
				return
			}
			if len(s.Companies) == 0 {
				registryErr = fmt.Errorf("sector %q has no companies", name)
				return
			}
			s.Name = name
			byName[name] = s
		}
		registry = byName
	})
	return registry, registryErr
}

// KnownSectors returns the configured sector names, sorted.
func KnownSectors() ([]string, error) {
	byName, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ResolveSector maps a sector name to its table set. The resolution happens
// once at startup; pipeline stages only ever see the resolved Resources.
func ResolveSector(name string, testRun bool) (Resources, error) {
	byName, err := loadRegistry()
	if err != nil {
		return Resources{}, err
	}

	key := strings.TrimSpace(strings.ToLower(name))
	sector, ok := byName[key]
	if !ok {
		known, _ := KnownSectors()
		return Resources{}, &SectorError{Sector: name, Known: known}
	}

	if testRun {
		return Resources{
			Sector:     sector,
			RawTable:   fmt.Sprintf("temporary.%s_newsapi_articles", sector.Name),
			StageTable: fmt.Sprintf("temporary.%s_articles_staging", sector.Name),
			MergeTable: fmt.Sprintf("temporary.%s_articles", sector.Name),
			QAFiltered: fmt.Sprintf("temporary.%s_filtered_articles_qa", sector.Name),
			QAKept:     fmt.Sprintf("temporary.%s_relevant_articles_qa", sector.Name),
			RunsTable:  "temporary.curation_runs",
		}, nil
	}

	return Resources{
		Sector:     sector,
		RawTable:   fmt.Sprintf("raw_news.%s_articles", sector.Name),
		StageTable: fmt.Sprintf("curated.%s_articles_staging", sector.Name),
		MergeTable: fmt.Sprintf("curated.%s_articles", sector.Name),
		QAFiltered: fmt.Sprintf("curated.%s_filtered_articles_qa", sector.Name),
		QAKept:     fmt.Sprintf("curated.%s_relevant_articles_qa", sector.Name),
		RunsTable:  "curated.curation_runs",
	}, nil
}
