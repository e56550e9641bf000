// Package payloadschema validates raw article payloads at ingress and decodes
// them into a typed form, replacing ad-hoc field probing with a declared
// contract.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed article.schema.json
var articleSchemaJSON string

// ArticlePayload mirrors the raw article JSON stored by the upstream fetcher.
type ArticlePayload struct {
	TempID      *string       `json:"temp_id,omitempty"`
	ArticleID   *string       `json:"article_id,omitempty"`
	CompanyID   json.Number   `json:"company_id,omitempty"`
	Sector      *string       `json:"sector,omitempty"`
	Lang        *string       `json:"lang,omitempty"`
	URL         string        `json:"url"`
	Title       string        `json:"title"`
	Body        *string       `json:"body,omitempty"`
	DateTimePub string        `json:"dateTimePub"`
	IsDuplicate *bool         `json:"isDuplicate,omitempty"`
	Source      PayloadSource `json:"source"`
}

type PayloadSource struct {
	URI     string          `json:"uri"`
	Title   *string         `json:"title,omitempty"`
	Ranking *PayloadRanking `json:"ranking,omitempty"`
}

type PayloadRanking struct {
	ImportanceRank *int `json:"importanceRank,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateArticlePayload checks a raw payload against the embedded schema and
// decodes it. Schema-valid but semantically broken payloads (unparseable
// publish time, relative URL) are also rejected.
func ValidateArticlePayload(payload json.RawMessage) (*ArticlePayload, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var item ArticlePayload
	if err := json.Unmarshal(normalized, &item); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&item); err != nil {
		return nil, err
	}

	return &item, nil
}

// PublishedAt parses the payload publish timestamp, accepting RFC3339 and the
// upstream's second-precision variant.
func (p *ArticlePayload) PublishedAt() (time.Time, error) {
	raw := strings.TrimSpace(p.DateTimePub)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable dateTimePub %q", p.DateTimePub)
}

// CompanyIDInt64 returns the numeric company id, tolerating the string form
// the upstream sometimes emits. A missing id yields zero.
func (p *ArticlePayload) CompanyIDInt64() int64 {
	raw := strings.TrimSpace(p.CompanyID.String())
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("article.schema.json", strings.NewReader(articleSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("article.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(payload json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}
	return value, nil
}

func validateSemantics(item *ArticlePayload) error {
	if _, err := item.PublishedAt(); err != nil {
		return err
	}

	parsed, err := url.Parse(strings.TrimSpace(item.URL))
	if err != nil {
		return fmt.Errorf("parse url %q: %w", item.URL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("url %q is not absolute", item.URL)
	}
	return nil
}
