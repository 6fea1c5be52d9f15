package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/neo-alexandria/neoalex/internal/model"
)

// HTTPConfig configures the model runtime HTTP client.
type HTTPConfig struct {
	// Endpoint is the runtime base URL, e.g. http://localhost:9470.
	Endpoint string
	// DenseModel names the dense embedding model.
	DenseModel string
	// SparseModel names the sparse embedding model.
	SparseModel string
	// CrossEncoderModel names the reranking model.
	CrossEncoderModel string
	// Dimensions is the dense embedding dimension. 0 means DefaultDimensions.
	Dimensions int
	// BatchSize bounds a single embedding request.
	BatchSize int
	// Timeout bounds a single model call.
	Timeout time.Duration
	// Retry configures backoff for transient failures.
	Retry RetryConfig
}

// HTTPClient talks to the model runtime over its HTTP API.
type HTTPClient struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig

	mu     sync.RWMutex
	closed bool
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a model runtime client.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
	}

	// No client-level timeout: each call uses a per-request context so that
	// callers keep control over cancellation.
	return &HTTPClient{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}
}

type embedRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

type sparseEmbedRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

type sparseEmbedResponse struct {
	Terms map[string]float64 `json:"terms"`
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Device    string   `json:"device,omitempty"`
}

type rerankResponse struct {
	Scores []ScoredPair `json:"scores"`
}

// Embed generates the embedding for a single text.
func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, c.config.Dimensions), nil
	}
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts. Empty texts map to
// zero vectors without a model call.
func (c *HTTPClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, c.config.Dimensions)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	for start := 0; start < len(nonEmpty); start += c.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := min(start+c.config.BatchSize, len(nonEmpty))
		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		var resp embedResponse
		req := embedRequest{Model: c.config.DenseModel, Input: batchTexts}
		err := withRetry(ctx, c.config.Retry, func() error {
			return c.post(ctx, "/v1/embed", req, &resp)
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("embed batch: got %d embeddings for %d texts", len(resp.Embeddings), len(batch))
		}

		for i, emb := range resp.Embeddings {
			vec := make([]float32, len(emb))
			for j, v := range emb {
				vec[j] = float32(v)
			}
			results[batch[i].idx] = normalizeVector(vec)
		}
	}

	return results, nil
}

// SparseEmbed generates the sparse term-weight embedding for a single text.
func (c *HTTPClient) SparseEmbed(ctx context.Context, text string) (model.SparseVector, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return model.SparseVector{}, nil
	}

	var resp sparseEmbedResponse
	req := sparseEmbedRequest{Model: c.config.SparseModel, Input: text}
	err := withRetry(ctx, c.config.Retry, func() error {
		return c.post(ctx, "/v1/sparse_embed", req, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("sparse embed: %w", err)
	}

	vec := make(model.SparseVector, len(resp.Terms))
	for term, weight := range resp.Terms {
		id, err := strconv.Atoi(term)
		if err != nil {
			continue
		}
		vec[id] = float32(weight)
	}
	return vec.Prune(), nil
}

// ScorePairs scores each document against the query with the cross-encoder.
// On a runtime out-of-memory response the call is retried once on CPU.
func (c *HTTPClient) ScorePairs(ctx context.Context, query string, docs []string) ([]ScoredPair, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []ScoredPair{}, nil
	}

	req := rerankRequest{Model: c.config.CrossEncoderModel, Query: query, Documents: docs}
	var resp rerankResponse
	err := c.post(ctx, "/v1/rerank", req, &resp)
	if err != nil && isOutOfMemory(err) {
		req.Device = "cpu"
		err = c.post(ctx, "/v1/rerank", req, &resp)
	}
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	return resp.Scores, nil
}

// Available checks if the runtime answers its health endpoint.
func (c *HTTPClient) Available(ctx context.Context) bool {
	if err := c.checkOpen(); err != nil {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, c.config.Endpoint+"/v1/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Dimensions returns the dense embedding dimension.
func (c *HTTPClient) Dimensions() int {
	return c.config.Dimensions
}

// ModelName returns the dense model identifier.
func (c *HTTPClient) ModelName() string {
	if c.config.DenseModel != "" {
		return c.config.DenseModel
	}
	return "remote"
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.transport.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("client is closed")
	}
	return nil
}

// post issues one JSON request bounded by the configured timeout.
func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.config.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: string(respBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// isOutOfMemory recognizes runtime accelerator OOM responses.
func isOutOfMemory(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	if se.code == http.StatusInsufficientStorage {
		return true
	}
	return strings.Contains(strings.ToLower(se.body), "out of memory")
}
