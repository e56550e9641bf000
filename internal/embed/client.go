// Package embed wraps the sentence-embedding HTTP service behind the
// Embedder capability the dedup detector consumes.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultBatchSize      = 32
	DefaultMaxLength      = 512
	DefaultRequestTimeout = 45 * time.Second
	DefaultConcurrency    = 4
)

// Options configures the embedding client. Zero values take the defaults.
type Options struct {
	Endpoint       string
	Model          string
	BatchSize      int
	MaxLength      int
	RequestTimeout time.Duration
	Concurrency    int
}

// Client batches texts to the embedding service. It speaks both the bare
// {"texts": ...} protocol and the OpenAI-compatible /v1/embeddings shape,
// chosen from the endpoint path.
type Client struct {
	endpoint   string
	model      string
	openAIWire bool
	batchSize  int
	maxLength  int
	timeout    time.Duration
	workers    int
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(opts Options, logger zerolog.Logger) *Client {
	endpoint := strings.TrimSpace(opts.Endpoint)
	openAIWire := false
	if parsed, err := url.Parse(endpoint); err == nil {
		if parsed.Path == "" || parsed.Path == "/" {
			parsed.Path = "/embed"
			endpoint = parsed.String()
		}
		openAIWire = strings.HasSuffix(parsed.Path, "/v1/embeddings")
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	maxLength := opts.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = DefaultConcurrency
	}

	return &Client{
		endpoint:   endpoint,
		model:      strings.TrimSpace(opts.Model),
		openAIWire: openAIWire,
		batchSize:  batchSize,
		maxLength:  maxLength,
		timeout:    timeout,
		workers:    workers,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

type embedRequest struct {
	Texts     []string `json:"texts,omitempty"`
	Input     []string `json:"input,omitempty"`
	Model     string   `json:"model,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Data       []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Encode embeds every text in order. Batches run concurrently on a bounded
// worker pool and the results are reassembled positionally, so the output
// index i always corresponds to texts[i].
func (c *Client) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	type batch struct {
		offset int
		texts  []string
	}
	var batches []batch
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batches = append(batches, batch{offset: start, texts: texts[start:end]})
	}

	pool, err := ants.NewPool(min(c.workers, len(batches)))
	if err != nil {
		return nil, fmt.Errorf("create embedding worker pool: %w", err)
	}
	defer pool.Release()

	vectors := make([][]float32, len(texts))
	errs := make([]error, len(batches))
	var wg sync.WaitGroup
	for i, b := range batches {
		wg.Add(1)
		i, b := i, b
		submitErr := pool.Submit(func() {
			defer wg.Done()
			batchVectors, err := c.encodeBatch(ctx, b.texts)
			if err != nil {
				errs[i] = err
				return
			}
			for j, v := range batchVectors {
				vectors[b.offset+j] = v
			}
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submit embedding batch: %w", submitErr)
		}
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

func (c *Client) encodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload := embedRequest{
		Texts:     texts,
		MaxLength: c.maxLength,
	}
	if c.openAIWire {
		payload = embedRequest{
			Input: texts,
			Model: c.model,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding service status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	raw := parsed.Embeddings
	if len(raw) == 0 && len(parsed.Data) > 0 {
		sort.Slice(parsed.Data, func(i, j int) bool {
			return parsed.Data[i].Index < parsed.Data[j].Index
		})
		raw = make([][]float64, 0, len(parsed.Data))
		for _, row := range parsed.Data {
			raw = append(raw, row.Embedding)
		}
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("embedding response count mismatch: requested=%d returned=%d", len(texts), len(raw))
	}

	vectors := make([][]float32, len(raw))
	for i, values := range raw {
		vector := make([]float32, len(values))
		for j, value := range values {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return nil, fmt.Errorf("embedding %d has non-finite value at index %d", i, j)
			}
			vector[j] = float32(value)
		}
		vectors[i] = vector
	}
	return vectors, nil
}
