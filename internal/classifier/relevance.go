// Package classifier implements the relevance gate over an OpenAI-compatible
// chat API. Articles go out in small batches with a sector-specific prompt and
// come back as per-id relevant / not_relevant labels.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"horse.fit/curator/internal/curation"
)

const (
	DefaultBatchSize  = 10
	maxDecodeAttempts = 3
)

// Options configures the relevance classifier.
type Options struct {
	Host      string
	Token     string
	Model     string
	Sector    string
	Pillar    string
	Companies []string
	BatchSize int
}

// Relevance classifies article batches through a chat model. It implements
// curation.Classifier.
type Relevance struct {
	client       llms.Model
	systemPrompt string
	batchSize    int
	logger       zerolog.Logger
}

// classifiedItem matches the JSON shape the model is instructed to emit.
type classifiedItem struct {
	ID       string `json:"id"`
	Relevant bool   `json:"relevant"`
}

type classification struct {
	Items []classifiedItem `json:"items"`
}

func New(opts Options, logger zerolog.Logger) (*Relevance, error) {
	token := opts.Token
	if strings.TrimSpace(token) == "" {
		// Local OpenAI-compatible services accept any token.
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(opts.Host),
		openai.WithToken(token),
		openai.WithModel(opts.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create classifier client: %w", err)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &Relevance{
		client:       client,
		systemPrompt: buildSystemPrompt(opts.Sector, opts.Pillar, opts.Companies),
		batchSize:    batchSize,
		logger:       logger,
	}, nil
}

func buildSystemPrompt(sector, pillar string, companies []string) string {
	var b strings.Builder
	b.WriteString("You are a financial news analyst curating articles for the ")
	b.WriteString(sector)
	b.WriteString(" sector")
	if pillar != "" {
		b.WriteString(" (")
		b.WriteString(pillar)
		b.WriteString(" pillar)")
	}
	b.WriteString(".\n\n")
	b.WriteString("An article is RELEVANT when it reports substantive news about the business, strategy, products, regulation, or financial performance of a tracked company. ")
	b.WriteString("Stock-price commentary, promotional content, listicles, and articles that only mention a company in passing are NOT relevant.\n\n")
	if len(companies) > 0 {
		b.WriteString("Tracked companies:\n")
		for _, c := range companies {
			b.WriteString("- ")
			b.WriteString(c)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("You receive a JSON array of articles, each with an \"id\" and a \"text\". ")
	b.WriteString("Respond with JSON only, shaped as {\"items\": [{\"id\": \"...\", \"relevant\": true|false}, ...]}, with exactly one entry per input article, copying each id verbatim.")
	return b.String()
}

// Classify labels every item. Items missing from the model output are simply
// absent from the returned map; the caller treats absence as not relevant.
func (r *Relevance) Classify(ctx context.Context, items []curation.ClassifierItem) (map[string]curation.Label, error) {
	labels := make(map[string]curation.Label, len(items))
	for start := 0; start < len(items); start += r.batchSize {
		end := min(start+r.batchSize, len(items))
		if err := r.classifyBatch(ctx, items[start:end], labels); err != nil {
			return nil, err
		}
	}
	return labels, nil
}

func (r *Relevance) classifyBatch(ctx context.Context, items []curation.ClassifierItem, labels map[string]curation.Label) error {
	type promptItem struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	batch := make([]promptItem, 0, len(items))
	for _, item := range items {
		batch = append(batch, promptItem{ID: item.ID, Text: item.Text})
	}
	userPayload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal classifier batch: %w", err)
	}

	content := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(r.systemPrompt)},
		},
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(string(userPayload))},
		},
	}

	var result classification
	var lastErr error
	for attempt := 0; attempt < maxDecodeAttempts; attempt++ {
		response, err := r.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			return fmt.Errorf("classifier request failed: %w", err)
		}
		if len(response.Choices) < 1 {
			lastErr = fmt.Errorf("classifier returned no choices")
			continue
		}

		responseText := strings.TrimSpace(response.Choices[0].Content)
		responseText = strings.TrimPrefix(responseText, "```json")
		responseText = strings.TrimPrefix(responseText, "```")
		responseText = strings.TrimSuffix(responseText, "```")
		responseText = strings.TrimSpace(responseText)

		if err := json.Unmarshal([]byte(responseText), &result); err != nil {
			lastErr = err
			r.logger.Warn().
				Int("attempt", attempt+1).
				Err(err).
				Msg("malformed classifier response, retrying")
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return fmt.Errorf("parse classifier response after %d attempts: %w", maxDecodeAttempts, lastErr)
	}

	known := make(map[string]struct{}, len(items))
	for _, item := range items {
		known[item.ID] = struct{}{}
	}
	for _, item := range result.Items {
		if _, ok := known[item.ID]; !ok {
			// Hallucinated ids never leak into the label set.
			r.logger.Warn().Str("id", item.ID).Msg("classifier returned unknown article id")
			continue
		}
		if item.Relevant {
			labels[item.ID] = curation.LabelRelevant
		} else {
			labels[item.ID] = curation.LabelNotRelevant
		}
	}
	return nil
}
