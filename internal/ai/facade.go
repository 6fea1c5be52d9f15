package ai

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/neo-alexandria/neoalex/internal/model"
)

// FallbackClient routes calls to the remote runtime and degrades to the
// deterministic static client when the runtime is unreachable. Availability
// is probed at most once per probeInterval so a down runtime does not add a
// health check to every call.
type FallbackClient struct {
	remote Client
	static *StaticClient

	probeInterval time.Duration

	mu         sync.Mutex
	lastProbe  time.Time
	remoteUp   bool
	everProbed bool
}

var _ Client = (*FallbackClient)(nil)

// NewFallbackClient wraps remote with static fallback. static may be nil, in
// which case one is created matching the remote's dimensions.
func NewFallbackClient(remote Client, static *StaticClient) *FallbackClient {
	if static == nil {
		static = NewStaticClient(remote.Dimensions())
	}
	return &FallbackClient{
		remote:        remote,
		static:        static,
		probeInterval: 30 * time.Second,
	}
}

// active returns the client to use for the next call.
func (f *FallbackClient) active(ctx context.Context) Client {
	f.mu.Lock()
	stale := !f.everProbed || time.Since(f.lastProbe) > f.probeInterval
	f.mu.Unlock()

	if stale {
		up := f.remote.Available(ctx)
		f.mu.Lock()
		if up != f.remoteUp && f.everProbed {
			if up {
				slog.Info("model runtime recovered")
			} else {
				slog.Warn("model runtime unreachable, using static fallback")
			}
		}
		f.remoteUp = up
		f.everProbed = true
		f.lastProbe = time.Now()
		f.mu.Unlock()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteUp {
		return f.remote
	}
	return f.static
}

// markDown records a remote failure so subsequent calls fall back without
// waiting for the probe interval.
func (f *FallbackClient) markDown() {
	f.mu.Lock()
	f.remoteUp = false
	f.lastProbe = time.Now()
	f.everProbed = true
	f.mu.Unlock()
}

// Embed generates the embedding for a single text.
func (f *FallbackClient) Embed(ctx context.Context, text string) ([]float32, error) {
	c := f.active(ctx)
	vec, err := c.Embed(ctx, text)
	if err != nil && c == f.remote && ctx.Err() == nil {
		f.markDown()
		return f.static.Embed(ctx, text)
	}
	return vec, err
}

// EmbedBatch generates embeddings for multiple texts.
func (f *FallbackClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c := f.active(ctx)
	vecs, err := c.EmbedBatch(ctx, texts)
	if err != nil && c == f.remote && ctx.Err() == nil {
		f.markDown()
		return f.static.EmbedBatch(ctx, texts)
	}
	return vecs, err
}

// SparseEmbed generates the sparse embedding for a single text.
func (f *FallbackClient) SparseEmbed(ctx context.Context, text string) (model.SparseVector, error) {
	c := f.active(ctx)
	vec, err := c.SparseEmbed(ctx, text)
	if err != nil && c == f.remote && ctx.Err() == nil {
		f.markDown()
		return f.static.SparseEmbed(ctx, text)
	}
	return vec, err
}

// ScorePairs scores documents against the query. Cross-encoder calls never
// fall back to the static approximation: the caller degrades to the fused
// order instead, which preserves real retrieval signal.
func (f *FallbackClient) ScorePairs(ctx context.Context, query string, docs []string) ([]ScoredPair, error) {
	return f.remote.ScorePairs(ctx, query, docs)
}

// Dimensions returns the dense embedding dimension.
func (f *FallbackClient) Dimensions() int {
	return f.remote.Dimensions()
}

// ModelName returns the active model identifier.
func (f *FallbackClient) ModelName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteUp || !f.everProbed {
		return f.remote.ModelName()
	}
	return f.static.ModelName()
}

// Available reports whether at least one backing client is ready.
func (f *FallbackClient) Available(ctx context.Context) bool {
	return f.remote.Available(ctx) || f.static.Available(ctx)
}

// Close releases both backing clients.
func (f *FallbackClient) Close() error {
	err := f.remote.Close()
	if cerr := f.static.Close(); err == nil {
		err = cerr
	}
	return err
}

// Default singleton. Shared model access is lazy: nothing connects to the
// runtime until the first caller needs it.
var (
	defaultMu     sync.Mutex
	defaultClient Client
	defaultInit   func() Client
)

// SetDefaultFactory installs the constructor used by Default. It must be
// called before the first Default call; later calls only affect a future
// ResetDefault.
func SetDefaultFactory(factory func() Client) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultInit = factory
}

// Default returns the shared client, constructing it on first use.
func Default() Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		if defaultInit != nil {
			defaultClient = defaultInit()
		} else {
			defaultClient = NewStaticClient(DefaultDimensions)
		}
	}
	return defaultClient
}

// ResetDefault drops the shared client so the next Default call rebuilds it.
// Intended for tests.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient != nil {
		_ = defaultClient.Close()
		defaultClient = nil
	}
}
