// Package ingest coordinates resource writes across the row store, the three
// retrieval legs and the event bus. Fetching and content extraction happen in
// external collaborators; this package owns the committed-write-then-emit
// contract and the ingestion status lifecycle.
package ingest

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/neo-alexandria/neoalex/internal/ai"
	"github.com/neo-alexandria/neoalex/internal/authority"
	"github.com/neo-alexandria/neoalex/internal/bus"
	"github.com/neo-alexandria/neoalex/internal/errors"
	"github.com/neo-alexandria/neoalex/internal/model"
	"github.com/neo-alexandria/neoalex/internal/store"
)

// Coordinator runs the write path. Every dependency is injected; the AI
// client and authority service may be nil, in which case the corresponding
// steps are skipped and the resource still completes on the lexical leg.
type Coordinator struct {
	resources store.ResourceStore
	lexical   store.LexicalIndex
	dense     store.DenseIndex
	sparse    store.SparseIndex
	ai        ai.Client
	authority *authority.Service
	bus       *bus.Bus
}

// New creates an ingestion coordinator. A nil eventBus falls back to the
// process-wide singleton.
func New(resources store.ResourceStore, lexical store.LexicalIndex,
	dense store.DenseIndex, sparse store.SparseIndex,
	client ai.Client, auth *authority.Service, eventBus *bus.Bus) *Coordinator {

	if eventBus == nil {
		eventBus = bus.Default()
	}
	return &Coordinator{
		resources: resources,
		lexical:   lexical,
		dense:     dense,
		sparse:    sparse,
		ai:        client,
		authority: auth,
		bus:       eventBus,
	}
}

// Ingest persists a new resource and runs it through the pipeline:
// pending, processing, then completed or failed. resource.created fires
// after the initial row committed; embedding or indexing failures mark the
// resource failed without surfacing an error to the caller's resource row.
func (c *Coordinator) Ingest(ctx context.Context, r *model.Resource) (*model.Resource, error) {
	if r.Title == "" {
		return nil, errors.InvalidArgument("resource title is required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.ReadStatus == "" {
		r.ReadStatus = model.ReadStatusUnread
	}
	r.IngestionStatus = model.IngestionPending
	r.IngestionError = ""

	c.normalize(ctx, r)

	if err := c.resources.Save(ctx, r); err != nil {
		return nil, err
	}
	c.bus.Emit(bus.EventResourceCreated, map[string]any{
		"resource_id": r.ID,
		"title":       r.Title,
		"timestamp":   r.CreatedAt,
	})

	c.process(ctx, r)
	return r, nil
}

// Update overwrites an existing resource and reindexes it. Emits
// resource.updated after the write committed.
func (c *Coordinator) Update(ctx context.Context, r *model.Resource) (*model.Resource, error) {
	prev, err := c.resources.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	r.CreatedAt = prev.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	c.normalize(ctx, r)

	if err := c.resources.Save(ctx, r); err != nil {
		return nil, err
	}
	c.bus.Emit(bus.EventResourceUpdated, map[string]any{
		"resource_id":      r.ID,
		"changed_fields":   changedFields(prev, r),
		"previous_quality": prev.QualityOverall,
	})

	c.process(ctx, r)
	return r, nil
}

// Get returns one resource row.
func (c *Coordinator) Get(ctx context.Context, id string) (*model.Resource, error) {
	return c.resources.Get(ctx, id)
}

// Delete removes a resource from the row store and every index. Emits
// resource.deleted after the row delete committed.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	r, err := c.resources.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := c.resources.Delete(ctx, id); err != nil {
		return err
	}

	if err := c.lexical.Delete(ctx, []string{id}); err != nil {
		slog.Warn("lexical deindex failed", "resource_id", id, "error", err)
	}
	if c.dense != nil {
		if err := c.dense.Delete(ctx, []string{id}); err != nil {
			slog.Warn("dense deindex failed", "resource_id", id, "error", err)
		}
	}
	if c.sparse != nil {
		if err := c.sparse.Delete(ctx, []string{id}); err != nil {
			slog.Warn("sparse deindex failed", "resource_id", id, "error", err)
		}
	}

	c.bus.Emit(bus.EventResourceDeleted, map[string]any{
		"resource_id": id,
		"title":       r.Title,
	})
	return nil
}

// changedFields lists the caller-settable fields that differ between two
// revisions, compared after normalization.
func changedFields(prev, next *model.Resource) []string {
	fields := []string{}
	if prev.Title != next.Title {
		fields = append(fields, "title")
	}
	if prev.Description != next.Description {
		fields = append(fields, "description")
	}
	if !slices.Equal(prev.Subject, next.Subject) {
		fields = append(fields, "subject")
	}
	if prev.Creator != next.Creator {
		fields = append(fields, "creator")
	}
	if prev.Publisher != next.Publisher {
		fields = append(fields, "publisher")
	}
	if prev.Language != next.Language {
		fields = append(fields, "language")
	}
	if prev.Type != next.Type {
		fields = append(fields, "type")
	}
	if prev.ClassificationCode != next.ClassificationCode {
		fields = append(fields, "classification_code")
	}
	if prev.ReadStatus != next.ReadStatus {
		fields = append(fields, "read_status")
	}
	return fields
}

// normalize canonicalizes names and labels and fills the classification
// code through the authority service.
func (c *Coordinator) normalize(ctx context.Context, r *model.Resource) {
	r.Creator = authority.NormalizeCreator(r.Creator)
	r.Publisher = authority.NormalizePublisher(r.Publisher)

	if c.authority != nil && len(r.Subject) > 0 {
		normalized, err := c.authority.NormalizeSubjects(ctx, r.Subject)
		if err != nil {
			slog.Warn("subject normalization failed", "resource_id", r.ID, "error", err)
		} else {
			r.Subject = normalized
		}
	}
	if r.ClassificationCode == "" {
		r.ClassificationCode = authority.ClassifyText(r.Title, r.Subject, r.Description)
	}
}

// process runs the indexing steps and flips the lifecycle status. The dense
// and sparse legs are best-effort when no model is available; a lexical
// index failure fails the ingestion.
func (c *Coordinator) process(ctx context.Context, r *model.Resource) {
	c.setStatus(ctx, r, model.IngestionProcessing, "")

	doc := &store.Document{
		ID:                 r.ID,
		Title:              r.Title,
		Description:        r.Description,
		Subject:            r.Subject,
		Creator:            r.Creator,
		ClassificationCode: r.ClassificationCode,
	}
	if err := c.lexical.Index(ctx, []*store.Document{doc}); err != nil {
		slog.Error("lexical indexing failed", "resource_id", r.ID, "error", err)
		c.setStatus(ctx, r, model.IngestionFailed, "lexical indexing failed")
		return
	}

	if c.ai != nil {
		c.embedDense(ctx, r)
		c.embedSparse(ctx, r)
	}

	c.setStatus(ctx, r, model.IngestionCompleted, "")
}

func (c *Coordinator) embedDense(ctx context.Context, r *model.Resource) {
	if c.dense == nil {
		return
	}

	vec, err := c.ai.Embed(ctx, embeddingText(r))
	if err != nil {
		slog.Warn("dense embedding failed", "resource_id", r.ID, "error", err)
		return
	}
	if err := c.resources.SaveEmbedding(ctx, r.ID, vec, c.ai.ModelName()); err != nil {
		slog.Warn("embedding persist failed", "resource_id", r.ID, "error", err)
		return
	}
	if err := c.dense.Add(ctx, []string{r.ID}, [][]float32{vec}); err != nil {
		slog.Warn("dense indexing failed", "resource_id", r.ID, "error", err)
	}
	r.Embedding = vec
	r.EmbeddingModel = c.ai.ModelName()
}

func (c *Coordinator) embedSparse(ctx context.Context, r *model.Resource) {
	if c.sparse == nil {
		return
	}

	vec, err := c.ai.SparseEmbed(ctx, embeddingText(r))
	if err != nil {
		slog.Warn("sparse embedding failed", "resource_id", r.ID, "error", err)
		return
	}
	vec = vec.Prune()
	if err := c.resources.SaveSparseEmbedding(ctx, r.ID, vec, c.ai.ModelName()); err != nil {
		slog.Warn("sparse embedding persist failed", "resource_id", r.ID, "error", err)
		return
	}
	if err := c.sparse.Add(ctx, r.ID, vec); err != nil {
		slog.Warn("sparse indexing failed", "resource_id", r.ID, "error", err)
	}
	r.SparseEmbedding = vec
}

func (c *Coordinator) setStatus(ctx context.Context, r *model.Resource, status model.IngestionStatus, errMsg string) {
	if err := c.resources.SetIngestionStatus(ctx, r.ID, status, errMsg); err != nil {
		slog.Error("ingestion status update failed",
			"resource_id", r.ID, "status", string(status), "error", err)
		return
	}
	r.IngestionStatus = status
	r.IngestionError = errMsg
}

// embeddingText is the text projection fed to both embedding models.
func embeddingText(r *model.Resource) string {
	if r.Description == "" {
		return r.Title
	}
	return r.Title + ". " + r.Description
}

// RebuildIndexes reloads the dense and sparse indexes from the stored
// embeddings, used at startup when the persisted index files are missing or
// stale.
func (c *Coordinator) RebuildIndexes(ctx context.Context) error {
	if c.dense != nil {
		embeddings, err := c.resources.AllEmbeddings(ctx)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(embeddings))
		vecs := make([][]float32, 0, len(embeddings))
		for id, v := range embeddings {
			ids = append(ids, id)
			vecs = append(vecs, v)
		}
		if len(ids) > 0 {
			if err := c.dense.Add(ctx, ids, vecs); err != nil {
				return err
			}
		}
	}

	if c.sparse != nil {
		sparse, err := c.resources.AllSparseEmbeddings(ctx)
		if err != nil {
			return err
		}
		for id, v := range sparse {
			if err := c.sparse.Add(ctx, id, v); err != nil {
				return err
			}
		}
	}
	return nil
}
