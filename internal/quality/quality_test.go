package quality

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo-alexandria/neoalex/internal/bus"
	"github.com/neo-alexandria/neoalex/internal/errors"
	"github.com/neo-alexandria/neoalex/internal/model"
	"github.com/neo-alexandria/neoalex/internal/store"
)

func TestDefaultWeightsSumToOne(t *testing.T) {
	require.NoError(t, ValidateWeights(DefaultWeights()))
	assert.InDelta(t, 1.0, DefaultWeights().Sum(), 1e-9)
}

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights model.QualityWeights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"within tolerance", model.QualityWeights{Accuracy: 0.5, Completeness: 0.5 + 5e-7}, false},
		{"sum too low", model.QualityWeights{Accuracy: 0.5}, true},
		{"sum too high", model.QualityWeights{Accuracy: 0.8, Completeness: 0.8}, true},
		{"negative weight", model.QualityWeights{Accuracy: 1.2, Completeness: -0.2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWeights(tt.weights)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsKind(err, errors.KindInvalidArgument))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateRecordRanges(t *testing.T) {
	rec := model.QualityRecord{Accuracy: 1.5, Weights: DefaultWeights()}
	err := ValidateRecord(rec)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidArgument))
}

func TestOverall(t *testing.T) {
	rec := model.QualityRecord{
		Accuracy:     1.0,
		Completeness: 0.8,
		Consistency:  0.6,
		Timeliness:   0.4,
		Relevance:    0.2,
		Weights:      DefaultWeights(),
	}
	// 0.30·1.0 + 0.25·0.8 + 0.20·0.6 + 0.15·0.4 + 0.10·0.2
	assert.InDelta(t, 0.70, Overall(rec), 1e-9)

	// Zero weights fall back to defaults.
	rec.Weights = model.QualityWeights{}
	assert.InDelta(t, 0.70, Overall(rec), 1e-9)
}

func TestDegradation(t *testing.T) {
	assert.InDelta(t, 0.3, Degradation(0.8, 0.5), 1e-9)
	assert.Zero(t, Degradation(0.5, 0.8))

	assert.True(t, IsDegraded(0.8, 0.6))
	assert.True(t, IsDegraded(0.8, 0.59))
	assert.False(t, IsDegraded(0.8, 0.61))
}

func TestIsOutlier(t *testing.T) {
	assert.True(t, IsOutlier(0.1, 0.3))
	assert.False(t, IsOutlier(0.3, 0.3))
	// Zero threshold uses the default.
	assert.True(t, IsOutlier(DefaultOutlierThreshold-0.01, 0))
}

func newTestResources(t *testing.T) store.ResourceStore {
	t.Helper()
	st, err := store.NewSQLiteResourceStore(filepath.Join(t.TempDir(), "resources.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedResource(t *testing.T, st store.ResourceStore, overall float64) *model.Resource {
	t.Helper()
	now := time.Now().UTC()
	r := &model.Resource{
		ID:              "r1",
		Title:           "Test resource",
		QualityOverall:  overall,
		IngestionStatus: model.IngestionCompleted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, st.Save(context.Background(), r))
	return r
}

func TestApplyRecordPersistsAndEmits(t *testing.T) {
	ctx := context.Background()
	st := newTestResources(t)
	seedResource(t, st, 0.9)

	b := bus.New(bus.Options{})
	var events []bus.Event
	for _, name := range []string{bus.EventQualityComputed, bus.EventQualityDegradation} {
		name := name
		b.Subscribe(name, "capture", func(ev bus.Event) error {
			events = append(events, ev)
			return nil
		})
	}

	svc := NewService(st, b, 0)
	rec := model.QualityRecord{
		Accuracy: 0.5, Completeness: 0.5, Consistency: 0.5,
		Timeliness: 0.5, Relevance: 0.5,
		Weights: DefaultWeights(),
	}
	updated, err := svc.ApplyRecord(ctx, "r1", rec)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, updated.QualityOverall, 1e-9)

	// 0.9 -> 0.5 crosses the degradation threshold.
	require.Len(t, events, 2)
	assert.Equal(t, bus.EventQualityComputed, events[0].Name)
	assert.Equal(t, bus.EventQualityDegradation, events[1].Name)

	computed := events[0].Data
	assert.Equal(t, "r1", computed["resource_id"])
	assert.InDelta(t, 0.5, computed["quality_overall"].(float64), 1e-9)
	dims, ok := computed["dimensions"].(map[string]float64)
	require.True(t, ok)
	assert.Equal(t, []string{"accuracy", "completeness", "consistency", "timeliness", "relevance"},
		sortedKeys(dims))
	assert.InDelta(t, 0.5, dims["accuracy"], 1e-9)

	degradation := events[1].Data
	assert.Equal(t, "r1", degradation["resource_id"])
	assert.InDelta(t, 0.9, degradation["previous"].(float64), 1e-9)
	assert.InDelta(t, 0.5, degradation["current"].(float64), 1e-9)

	got, err := st.Get(ctx, "r1")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.QualityOverall, 1e-9)
	assert.InDelta(t, 0.5, got.Quality.Accuracy, 1e-9)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestApplyRecordNoDegradationEvent(t *testing.T) {
	ctx := context.Background()
	st := newTestResources(t)
	seedResource(t, st, 0.5)

	b := bus.New(bus.Options{})
	degraded := false
	b.Subscribe(bus.EventQualityDegradation, "capture", func(bus.Event) error {
		degraded = true
		return nil
	})

	svc := NewService(st, b, 0)
	rec := model.QualityRecord{
		Accuracy: 0.6, Completeness: 0.6, Consistency: 0.6,
		Timeliness: 0.6, Relevance: 0.6,
		Weights: DefaultWeights(),
	}
	_, err := svc.ApplyRecord(ctx, "r1", rec)
	require.NoError(t, err)
	assert.False(t, degraded)
}

func TestApplyRecordRejectsBadWeights(t *testing.T) {
	ctx := context.Background()
	st := newTestResources(t)
	seedResource(t, st, 0.5)

	svc := NewService(st, bus.New(bus.Options{}), 0)
	rec := model.QualityRecord{
		Accuracy: 0.5,
		Weights:  model.QualityWeights{Accuracy: 0.5},
	}
	_, err := svc.ApplyRecord(ctx, "r1", rec)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidArgument))
}

func TestApplyRecordUnknownResource(t *testing.T) {
	st := newTestResources(t)
	svc := NewService(st, bus.New(bus.Options{}), 0)

	_, err := svc.ApplyRecord(context.Background(), "missing", model.QualityRecord{Weights: DefaultWeights()})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestReportOutlierScore(t *testing.T) {
	ctx := context.Background()
	st := newTestResources(t)
	seedResource(t, st, 0.5)

	b := bus.New(bus.Options{})
	var got bus.Event
	b.Subscribe(bus.EventQualityOutlier, "capture", func(ev bus.Event) error {
		got = ev
		return nil
	})

	svc := NewService(st, b, 0.3)

	flagged, err := svc.ReportOutlierScore(ctx, "r1", 0.1, []string{"isolation forest"})
	require.NoError(t, err)
	assert.True(t, flagged)
	assert.Equal(t, "r1", got.Data["resource_id"])
	assert.InDelta(t, 0.1, got.Data["outlier_score"].(float64), 1e-9)
	assert.Equal(t, []string{"isolation forest"}, got.Data["reasons"])
	assert.Equal(t, bus.PriorityHigh, got.Priority)

	flagged, err = svc.ReportOutlierScore(ctx, "r1", 0.9, nil)
	require.NoError(t, err)
	assert.False(t, flagged)
}
