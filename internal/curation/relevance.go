package curation

import (
	"context"
	"fmt"
)

// Label is a relevance classification outcome.
type Label string

const (
	LabelRelevant    Label = "relevant"
	LabelNotRelevant Label = "not_relevant"
)

// ClassifierItem is one unit of classifier input: the article id and the text
// to judge. The classifier must return exactly one label per input id.
type ClassifierItem struct {
	ID   string
	Text string
}

// Classifier is the external text-classification capability behind the
// relevance gate.
type Classifier interface {
	Classify(ctx context.Context, items []ClassifierItem) (map[string]Label, error)
}

// ApplyRelevanceGate joins classifier labels back on article id without
// assuming order preservation. The gate fails closed: an article with a
// missing or non-relevant label never reaches the kept set and is tagged
// not_relevant for the QA trail.
func ApplyRelevanceGate(ctx context.Context, classifier Classifier, batch []Article) ([]Article, []RejectedArticle, error) {
	if len(batch) == 0 {
		return nil, nil, nil
	}

	items := make([]ClassifierItem, len(batch))
	for i, a := range batch {
		text := a.Title
		if a.Body != "" {
			text += "\n\n" + a.Body
		}
		items[i] = ClassifierItem{ID: a.ID, Text: text}
	}

	labels, err := classifier.Classify(ctx, items)
	if err != nil {
		return nil, nil, fmt.Errorf("classify batch of %d: %w", len(batch), err)
	}

	var kept []Article
	var rejected []RejectedArticle
	for _, a := range batch {
		if labels[a.ID] == LabelRelevant {
			kept = append(kept, a)
		} else {
			rejected = append(rejected, RejectedArticle{Article: a, Reason: ReasonNotRelevant})
		}
	}
	return kept, rejected, nil
}
