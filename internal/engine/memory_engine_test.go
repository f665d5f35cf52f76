package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vaultmind/memcore/internal/config"
	"github.com/vaultmind/memcore/internal/embedding"
	"github.com/vaultmind/memcore/internal/engine"
	"github.com/vaultmind/memcore/internal/storage/file"
	"github.com/vaultmind/memcore/pkg/types"
)

// stubEmbedder returns a fixed vector per input string, matching the seed
// test fixtures: "alpha" -> [1,0,0,0], "beta" -> [0,1,0,0], anything else
// falls back to the local deterministic embedder.
type stubEmbedder struct {
	fallback embedding.Client
	vectors  map[string][]float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return s.fallback.Embed(ctx, text)
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return 4 }

func newTestEngine(t *testing.T) (*engine.Engine, *stubEmbedder) {
	t.Helper()
	cfg := config.Default()
	cfg.Vector.Dimension = 4
	cfg.Storage.Backend = "file"
	cfg.Storage.Connection = t.TempDir()

	store := file.New(cfg.Storage.Connection)
	stub := &stubEmbedder{
		fallback: embedding.NewLocalClient(4),
		vectors: map[string][]float32{
			"alpha": {1, 0, 0, 0},
			"beta":  {0, 1, 0, 0},
		},
	}
	e := engine.New(cfg, store, stub)
	require.NoError(t, e.Initialize(context.Background()))
	return e, stub
}

func TestEngine_RoundTripSingleMemory(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	id, err := e.Remember(ctx, "alpha", "t1", "", engine.RememberOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	results, err := e.Recall(ctx, "alpha", "t1", "", engine.RecallOptions{
		Threshold: 0.5, ThresholdSet: true, TimeDecay: boolPtr(false),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, id, results[0].Memory.ID)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)

	none, err := e.Recall(ctx, "beta", "t1", "", engine.RecallOptions{
		Threshold: 0.5, ThresholdSet: true, TimeDecay: boolPtr(false),
	})
	require.NoError(t, err)
	require.Len(t, none, 0)
}

func TestEngine_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.Remember(ctx, "secret", "t1", "", engine.RememberOptions{})
	require.NoError(t, err)
	y, err := e.Remember(ctx, "secret", "t2", "", engine.RememberOptions{})
	require.NoError(t, err)

	results, err := e.Recall(ctx, "secret", "t2", "", engine.RecallOptions{
		Threshold: 0, ThresholdSet: true, TimeDecay: boolPtr(false),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, y, results[0].Memory.ID)
}

func TestEngine_ForgetRemovesFromIndices(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	first, err := e.Remember(ctx, "alpha", "t1", "", engine.RememberOptions{Tags: []string{"urgent"}})
	require.NoError(t, err)
	_, err = e.Remember(ctx, "beta", "t1", "", engine.RememberOptions{Tags: []string{"urgent"}})
	require.NoError(t, err)

	removed, err := e.ForgetByID(ctx, first)
	require.NoError(t, err)
	require.True(t, removed)

	results, err := e.Recall(ctx, "beta", "t1", "", engine.RecallOptions{
		Threshold: 0, ThresholdSet: true, Tags: []string{"urgent"}, TimeDecay: boolPtr(false),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestEngine_ForgetMissingIDReturnsFalse(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	removed, err := e.ForgetByID(ctx, "does-not-exist")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestEngine_RecallLimitZeroReturnsEmptyNoError(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	_, err := e.Remember(ctx, "alpha", "t1", "", engine.RememberOptions{})
	require.NoError(t, err)

	results, err := e.Recall(ctx, "alpha", "t1", "", engine.RecallOptions{Limit: 0, LimitSet: true})
	require.NoError(t, err)
	require.Len(t, results, 0)
}

func TestEngine_RecallLimitAboveMaxRejected(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.Recall(ctx, "alpha", "t1", "", engine.RecallOptions{Limit: 101, LimitSet: true})
	require.Error(t, err)
}

func TestEngine_RememberEmptyContentRejected(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.Remember(ctx, "   ", "t1", "", engine.RememberOptions{})
	require.Error(t, err)
}

func TestEngine_RememberMissingTenantRejected(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.Remember(ctx, "alpha", "", "", engine.RememberOptions{})
	require.Error(t, err)
}

func TestEngine_UpdateRestampsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	id, err := e.Remember(ctx, "alpha", "t1", "", engine.RememberOptions{})
	require.NoError(t, err)

	newContent := "alpha updated"
	beforeUpdate := time.Now().UTC()
	updated, err := e.Update(ctx, id, &types.Patch{Content: &newContent})
	require.NoError(t, err)
	require.Equal(t, newContent, updated.Content)
	require.False(t, updated.UpdatedAt.Before(beforeUpdate))
}

func TestEngine_StatsReportsTotals(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	_, err := e.Remember(ctx, "alpha", "t1", "", engine.RememberOptions{})
	require.NoError(t, err)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Total)
}

func TestEngine_HealthHealthyWhenInitialized(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	h := e.Health(ctx)
	require.True(t, h.Initialized)
	require.Equal(t, types.HealthHealthy, h.Status)
}

func TestEngine_OperationsFailBeforeInitialize(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Vector.Dimension = 4
	store := file.New(t.TempDir())
	e := engine.New(cfg, store, embedding.NewLocalClient(4))

	_, err := e.Remember(ctx, "alpha", "t1", "", engine.RememberOptions{})
	require.Error(t, err)
}

func boolPtr(b bool) *bool { return &b }
