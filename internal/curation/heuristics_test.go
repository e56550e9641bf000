package curation

import (
	"strings"
	"testing"
)

// bodyWithWords builds a body mentioning Acme Bank with exactly n words.
func bodyWithWords(n int) string {
	words := []string{"Acme", "Bank", "announced"}
	for len(words) < n {
		words = append(words, "results")
	}
	return strings.Join(words[:n], " ")
}

func newTestFilterEngine() *FilterEngine {
	return NewFilterEngine(FilterOptions{
		MinWords:  75,
		Companies: []string{"Acme Bank"},
	})
}

func TestEvaluateRejectsShortArticle(t *testing.T) {
	t.Parallel()

	engine := newTestFilterEngine()
	verdict := engine.Evaluate(Article{Title: "Acme Bank results", Body: bodyWithWords(40)})
	if verdict.Keep {
		t.Fatal("40-word body must fail the 75-word minimum")
	}
	if verdict.Reason != ReasonShortArticle {
		t.Fatalf("reason = %q, want %q", verdict.Reason, ReasonShortArticle)
	}
}

func TestEvaluateKeepsLongEnoughArticle(t *testing.T) {
	t.Parallel()

	engine := newTestFilterEngine()
	verdict := engine.Evaluate(Article{Title: "Acme Bank results", Body: bodyWithWords(75)})
	if !verdict.Keep {
		t.Fatalf("75-word body with a company mention should pass, got reason %q", verdict.Reason)
	}
}

func TestEvaluateRejectsEmptyBodyAsShort(t *testing.T) {
	t.Parallel()

	engine := newTestFilterEngine()
	verdict := engine.Evaluate(Article{Title: "Acme Bank results", Body: ""})
	if verdict.Keep || verdict.Reason != ReasonShortArticle {
		t.Fatalf("empty body should be a short-article rejection, got %+v", verdict)
	}
}

func TestEvaluateRejectsStockPickContent(t *testing.T) {
	t.Parallel()

	engine := newTestFilterEngine()
	body := bodyWithWords(80) + " These are the top 5 stocks to buy according to Acme Bank analysts."
	verdict := engine.Evaluate(Article{Title: "Market note", Body: body})
	if verdict.Keep || verdict.Reason != ReasonStockPick {
		t.Fatalf("stock-pick phrasing should be rejected as %q, got %+v", ReasonStockPick, verdict)
	}
}

func TestEvaluateRejectsTickerPromotion(t *testing.T) {
	t.Parallel()

	engine := newTestFilterEngine()
	body := bodyWithWords(80) + " (NYSE: ABC) traded alongside (NASDAQ: DEF) and (LSE: GHI) today."
	verdict := engine.Evaluate(Article{Title: "Acme Bank note", Body: body})
	if verdict.Keep || verdict.Reason != ReasonStockPick {
		t.Fatalf("three ticker tags should be rejected as %q, got %+v", ReasonStockPick, verdict)
	}
}

func TestEvaluateRejectsZeroCompanyMentions(t *testing.T) {
	t.Parallel()

	engine := newTestFilterEngine()
	body := strings.Repeat("generic industry commentary without any tracked names ", 20)
	verdict := engine.Evaluate(Article{Title: "Sector wrap", Body: body})
	if verdict.Keep || verdict.Reason != ReasonHeuristicCutoff {
		t.Fatalf("zero company mentions should be a heuristic cutoff, got %+v", verdict)
	}
}

func TestEvaluateRejectsLinkHeavyMarkup(t *testing.T) {
	t.Parallel()

	engine := newTestFilterEngine()
	var b strings.Builder
	b.WriteString("<html><body><p>Acme Bank ")
	b.WriteString(bodyWithWords(80))
	b.WriteString("</p>")
	for i := 0; i < 60; i++ {
		b.WriteString("<a href=\"#\">read more about related syndicated coverage here</a> ")
	}
	b.WriteString("</body></html>")

	verdict := engine.Evaluate(Article{Title: "Acme Bank", Body: b.String()})
	if verdict.Keep || verdict.Reason != ReasonHeuristicCutoff {
		t.Fatalf("link-dominated markup should be a heuristic cutoff, got %+v", verdict)
	}
}

func TestApplyPartitionsWithoutLoss(t *testing.T) {
	t.Parallel()

	engine := newTestFilterEngine()
	batch := []Article{
		{ID: "keep", Title: "Acme Bank results", Body: bodyWithWords(100)},
		{ID: "short", Title: "Acme Bank brief", Body: bodyWithWords(10)},
		{ID: "offtopic", Title: "Weather", Body: strings.Repeat("sunny skies expected across the region tomorrow morning ", 15)},
	}

	kept, rejected := engine.Apply(batch)
	if len(kept)+len(rejected) != len(batch) {
		t.Fatalf("kept+rejected = %d, want %d", len(kept)+len(rejected), len(batch))
	}
	if len(kept) != 1 || kept[0].ID != "keep" {
		t.Fatalf("expected only %q to pass, got %+v", "keep", kept)
	}
	reasons := map[string]FilterReason{}
	for _, r := range rejected {
		reasons[r.Article.ID] = r.Reason
	}
	if reasons["short"] != ReasonShortArticle {
		t.Fatalf("short article reason = %q", reasons["short"])
	}
	if reasons["offtopic"] != ReasonHeuristicCutoff {
		t.Fatalf("offtopic article reason = %q", reasons["offtopic"])
	}
}
