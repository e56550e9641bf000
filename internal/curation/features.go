package curation

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// Features are the derived per-article signals the cutoff heuristics inspect.
type Features struct {
	WordCount          int
	CompanyMentions    int
	BoilerplateDensity float64
}

// ExtractFeatures computes the signals from an article body. Malformed input
// never fails: an empty or unparseable body simply yields zero-valued
// features, which downstream rules treat as failing.
func ExtractFeatures(a Article, companies []string) Features {
	body := strings.TrimSpace(a.Body)
	text := body
	density := 0.0
	if looksLikeMarkup(body) {
		text, density = stripMarkup(body)
	}

	return Features{
		WordCount:          countWords(text),
		CompanyMentions:    countCompanyMentions(a.Title+"\n"+text, companies),
		BoilerplateDensity: density,
	}
}

func countWords(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return len(strings.Fields(text))
}

func countCompanyMentions(text string, companies []string) int {
	if text == "" || len(companies) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	mentions := 0
	for _, company := range companies {
		needle := strings.ToLower(strings.TrimSpace(company))
		if needle == "" {
			continue
		}
		mentions += strings.Count(lower, needle)
	}
	return mentions
}

func looksLikeMarkup(body string) bool {
	open := strings.IndexByte(body, '<')
	if open < 0 {
		return false
	}
	close := strings.IndexByte(body[open:], '>')
	return close > 1
}

// stripMarkup extracts visible text from a markup-bearing body and reports
// the share of that text living inside anchors. Syndicated boilerplate pages
// are mostly link text.
func stripMarkup(body string) (text string, linkDensity float64) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body, 0
	}

	doc.Find("script, style, noscript").Remove()

	full := normalizeSpace(doc.Text())
	linkLen := 0
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		linkLen += len(normalizeSpace(s.Text()))
	})

	if len(full) == 0 {
		return "", 0
	}
	density := float64(linkLen) / float64(len(full))
	if density > 1 {
		density = 1
	}
	return full, density
}

func normalizeSpace(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	lastSpace := false
	for _, r := range strings.TrimSpace(input) {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}
