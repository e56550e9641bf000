package curation

import (
	"regexp"
	"strings"

	"github.com/pemistahl/lingua-go"
)

const (
	DefaultMinWords              = 75
	DefaultMaxBoilerplateDensity = 0.35
	tickerPromotionFloor         = 3
)

var stockPickPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:stocks?|shares?)\s+to\s+(?:buy|watch|own|sell)\b`),
	regexp.MustCompile(`(?i)\btop\s+\d+\s+(?:stocks?|shares?|picks?)\b`),
	regexp.MustCompile(`(?i)\b(?:strong\s+)?(?:buy|sell|hold)\s+rating\b`),
	regexp.MustCompile(`(?i)\bprice\s+target\s+(?:raised|lowered|set|cut)\b`),
	regexp.MustCompile(`(?i)\bmotley\s+fool\b`),
	regexp.MustCompile(`(?i)\bzacks\s+(?:rank|investment\s+research)\b`),
}

var tickerPattern = regexp.MustCompile(`(?i)\((?:NYSE|NASDAQ|LSE|TSX|ASX):\s*[A-Z][A-Z.\-]{0,6}\)`)

// FilterOptions configures the heuristic filter engine. Zero values fall back
// to the documented defaults.
type FilterOptions struct {
	MinWords              int
	MaxBoilerplateDensity float64
	Companies             []string
	// CheckLanguage enables the body-language heuristic; bodies detected as
	// something other than English are treated as a cutoff failure.
	CheckLanguage bool
}

// Verdict is a per-article filter outcome.
type Verdict struct {
	Keep   bool
	Reason FilterReason
}

// FilterEngine applies the pre-classification reject rules in a fixed order.
// Every predicate is pure and total; an article rejected by any rule is
// rejected overall and the first matching rule names the reason.
type FilterEngine struct {
	opts     FilterOptions
	detector lingua.LanguageDetector
}

func NewFilterEngine(opts FilterOptions) *FilterEngine {
	if opts.MinWords <= 0 {
		opts.MinWords = DefaultMinWords
	}
	if opts.MaxBoilerplateDensity <= 0 {
		opts.MaxBoilerplateDensity = DefaultMaxBoilerplateDensity
	}

	engine := &FilterEngine{opts: opts}
	if opts.CheckLanguage {
		engine.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(
				lingua.English,
				lingua.French,
				lingua.German,
				lingua.Spanish,
				lingua.Portuguese,
				lingua.Italian,
				lingua.Dutch,
			).
			WithLowAccuracyMode().
			Build()
	}
	return engine
}

// Evaluate runs the rules against one article. Missing or empty body text is
// not an error: it fails the short-article rule.
func (e *FilterEngine) Evaluate(a Article) Verdict {
	features := ExtractFeatures(a, e.opts.Companies)

	if features.WordCount < e.opts.MinWords {
		return Verdict{Keep: false, Reason: ReasonShortArticle}
	}
	if isStockPick(a.Body) {
		return Verdict{Keep: false, Reason: ReasonStockPick}
	}
	if features.CompanyMentions == 0 {
		return Verdict{Keep: false, Reason: ReasonHeuristicCutoff}
	}
	if features.BoilerplateDensity > e.opts.MaxBoilerplateDensity {
		return Verdict{Keep: false, Reason: ReasonHeuristicCutoff}
	}
	if e.detector != nil {
		if lang, ok := e.detector.DetectLanguageOf(a.Body); ok && lang != lingua.English {
			return Verdict{Keep: false, Reason: ReasonHeuristicCutoff}
		}
	}

	return Verdict{Keep: true}
}

// Apply partitions a batch into kept articles and tagged rejections.
func (e *FilterEngine) Apply(batch []Article) (kept []Article, rejected []RejectedArticle) {
	for _, a := range batch {
		verdict := e.Evaluate(a)
		if verdict.Keep {
			kept = append(kept, a)
			continue
		}
		rejected = append(rejected, RejectedArticle{Article: a, Reason: verdict.Reason})
	}
	return kept, rejected
}

func isStockPick(body string) bool {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return false
	}
	for _, pattern := range stockPickPatterns {
		if pattern.MatchString(trimmed) {
			return true
		}
	}
	return len(tickerPattern.FindAllString(trimmed, tickerPromotionFloor)) >= tickerPromotionFloor
}
