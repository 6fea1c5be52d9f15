package quality

import (
	"context"
	"time"

	"github.com/neo-alexandria/neoalex/internal/bus"
	"github.com/neo-alexandria/neoalex/internal/model"
	"github.com/neo-alexandria/neoalex/internal/store"
)

// Service applies quality records produced by the scoring collaborator and
// emits the quality events. Events fire only after the storage write
// committed, so subscribers reading storage see the new scores.
type Service struct {
	resources        store.ResourceStore
	bus              *bus.Bus
	outlierThreshold float64
}

// NewService creates the quality service. A nil eventBus falls back to the
// process-wide singleton; a zero threshold uses the default.
func NewService(resources store.ResourceStore, eventBus *bus.Bus, outlierThreshold float64) *Service {
	if eventBus == nil {
		eventBus = bus.Default()
	}
	if outlierThreshold <= 0 {
		outlierThreshold = DefaultOutlierThreshold
	}
	return &Service{resources: resources, bus: eventBus, outlierThreshold: outlierThreshold}
}

// ApplyRecord validates a quality record, recomputes the overall score and
// persists both on the resource. Emits quality.computed, and
// quality.degradation_detected when the overall dropped by at least the
// degradation threshold.
func (s *Service) ApplyRecord(ctx context.Context, resourceID string, rec model.QualityRecord) (*model.Resource, error) {
	if rec.Weights.Sum() == 0 {
		rec.Weights = DefaultWeights()
	}
	if err := ValidateRecord(rec); err != nil {
		return nil, err
	}

	r, err := s.resources.Get(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	oldOverall := r.QualityOverall
	r.Quality = rec
	r.QualityOverall = Overall(rec)
	r.UpdatedAt = time.Now().UTC()

	if err := s.resources.Save(ctx, r); err != nil {
		return nil, err
	}

	s.bus.Emit(bus.EventQualityComputed, map[string]any{
		"resource_id":     r.ID,
		"quality_overall": r.QualityOverall,
		"dimensions": map[string]float64{
			"accuracy":     rec.Accuracy,
			"completeness": rec.Completeness,
			"consistency":  rec.Consistency,
			"timeliness":   rec.Timeliness,
			"relevance":    rec.Relevance,
		},
	})
	if IsDegraded(oldOverall, r.QualityOverall) {
		s.bus.EmitWithPriority(bus.EventQualityDegradation, map[string]any{
			"resource_id": r.ID,
			"previous":    oldOverall,
			"current":     r.QualityOverall,
		}, bus.PriorityHigh)
	}
	return r, nil
}

// ReportOutlierScore records an outlier score from the scoring collaborator
// and emits quality.outlier_detected when it falls below threshold. reasons
// carries the collaborator's explanation of the flag.
func (s *Service) ReportOutlierScore(ctx context.Context, resourceID string, score float64, reasons []string) (bool, error) {
	// The score itself lives with the collaborator; existence is all the
	// core checks.
	if _, err := s.resources.Get(ctx, resourceID); err != nil {
		return false, err
	}
	if !IsOutlier(score, s.outlierThreshold) {
		return false, nil
	}
	if reasons == nil {
		reasons = []string{}
	}
	s.bus.EmitWithPriority(bus.EventQualityOutlier, map[string]any{
		"resource_id":   resourceID,
		"outlier_score": score,
		"reasons":       reasons,
	}, bus.PriorityHigh)
	return true, nil
}
