// Package curation implements the article curation pipeline: canonical and
// semantic deduplication, heuristic filtering, the relevance gate, and the
// orchestration that turns a raw article window into a curated record set
// with a full rejection trail.
package curation

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Article is the immutable input record. The pipeline never mutates articles;
// it only classifies and routes them.
type Article struct {
	ID                   string
	CompanyID            int64
	Sector               string
	URL                  string
	Title                string
	Body                 string
	SourceName           string
	SourceURI            string
	SourceImportanceRank int
	IsTopTier            bool
	DatePublished        time.Time
	IngestedAt           time.Time
}

// ArticleID derives the content fingerprint from the publish time and URL.
// Re-ingesting the same article always yields the same id.
func ArticleID(datePublished time.Time, url string) string {
	sum := sha256.Sum256([]byte(datePublished.UTC().Format(time.RFC3339) + "\n" + strings.TrimSpace(url)))
	return hex.EncodeToString(sum[:])
}

// FilterReason labels why a rejected article was rejected. Every rejection is
// retained for the QA trail; nothing is silently dropped.
type FilterReason string

const (
	ReasonShortArticle        FilterReason = "short_article"
	ReasonStockPick           FilterReason = "stock_pick"
	ReasonInternalDuplicate   FilterReason = "internal_duplicate"
	ReasonHistoricalDuplicate FilterReason = "historical_duplicate"
	ReasonHeuristicCutoff     FilterReason = "heuristic_cutoff"
	ReasonSemanticDuplicate   FilterReason = "semantic_duplicate"
	ReasonNotRelevant         FilterReason = "not_relevant"
)

// RejectedArticle pairs a rejected article with its reason for the QA trail.
type RejectedArticle struct {
	Article Article
	Reason  FilterReason
}

// CuratedRecord is the durable output shape, keyed by the article id. The
// merge into the destination table is append-only: an existing id is never
// updated or deleted.
type CuratedRecord struct {
	ID            string
	CompanyID     int64
	Sector        string
	URL           string
	Title         string
	Body          string
	SourceName    string
	Pillar        string
	DatePublished time.Time
	RunDatetime   time.Time
}

// HistoricalRecord is the slice of a previously curated record the historical
// dedup pass compares against. The historical store is read-only here.
type HistoricalRecord struct {
	ID            string
	Title         string
	Body          string
	DatePublished time.Time
}

// NewCuratedRecord projects an accepted article into its durable shape.
func NewCuratedRecord(a Article, pillar string, runDatetime time.Time) CuratedRecord {
	return CuratedRecord{
		ID:            a.ID,
		CompanyID:     a.CompanyID,
		Sector:        a.Sector,
		URL:           a.URL,
		Title:         a.Title,
		Body:          a.Body,
		SourceName:    a.SourceName,
		Pillar:        pillar,
		DatePublished: a.DatePublished,
		RunDatetime:   runDatetime,
	}
}
