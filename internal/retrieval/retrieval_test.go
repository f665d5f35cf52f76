package retrieval_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vaultmind/memcore/internal/index"
	"github.com/vaultmind/memcore/internal/retrieval"
	"github.com/vaultmind/memcore/pkg/types"
)

func TestCosineSimilarity_IdenticalVectors(t *testing.T) {
	sim := retrieval.CosineSimilarity([]float32{1, 0, 0, 0}, []float32{1, 0, 0, 0})
	require.InDelta(t, 1.0, sim, 1e-9)
}

func TestCosineSimilarity_OrthogonalVectors(t *testing.T) {
	sim := retrieval.CosineSimilarity([]float32{1, 0, 0, 0}, []float32{0, 1, 0, 0})
	require.InDelta(t, 0.0, sim, 1e-9)
}

func TestCosineSimilarity_ZeroVectorNeverNaN(t *testing.T) {
	sim := retrieval.CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	require.Equal(t, 0.0, sim)
}

func TestRank_ExactMatchScoresNearOne(t *testing.T) {
	now := time.Now().UTC()
	ix := index.New()
	alpha := &types.Memory{ID: "x", Type: types.TypeFact, Embedding: []float32{1, 0, 0, 0}, CreatedAt: now}
	ix.Insert(alpha)

	results := retrieval.Rank([]*types.Memory{alpha}, []float32{1, 0, 0, 0}, ix, retrieval.Options{
		Limit: 10, Threshold: 0.5, Now: now,
	})
	require.Len(t, results, 1)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestRank_BelowThresholdExcluded(t *testing.T) {
	now := time.Now().UTC()
	ix := index.New()
	beta := &types.Memory{ID: "y", Type: types.TypeFact, Embedding: []float32{0, 1, 0, 0}, CreatedAt: now}
	ix.Insert(beta)

	results := retrieval.Rank([]*types.Memory{beta}, []float32{1, 0, 0, 0}, ix, retrieval.Options{
		Limit: 10, Threshold: 0.5, Now: now,
	})
	require.Len(t, results, 0)
}

func TestRank_TimeDecayOrdersRecentFirst(t *testing.T) {
	now := time.Now().UTC()
	ix := index.New()
	recent := &types.Memory{ID: "a", Type: types.TypeFact, Embedding: []float32{1, 0}, CreatedAt: now, UpdatedAt: now}
	old := &types.Memory{ID: "b", Type: types.TypeFact, Embedding: []float32{1, 0}, CreatedAt: now.AddDate(0, 0, -60), UpdatedAt: now.AddDate(0, 0, -60)}
	ix.Insert(recent)
	ix.Insert(old)

	results := retrieval.Rank([]*types.Memory{recent, old}, []float32{1, 0}, ix, retrieval.Options{
		Limit: 10, Threshold: 0, TimeDecay: true, HalfLifeDays: 30, MinScore: 0.1, Now: now,
	})
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].Memory.ID)
	require.Equal(t, "b", results[1].Memory.ID)
	// Identical vectors normalize to 1.0; decay is exp(-0/30) = 1 for the
	// recent memory and exp(-60/30) ≈ 0.1353 for the 60-day-old one.
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
	require.InDelta(t, 0.1353, results[1].Score, 1e-3)
}

func TestRank_TagFilterAnyOf(t *testing.T) {
	now := time.Now().UTC()
	ix := index.New()
	a := &types.Memory{ID: "a", Type: types.TypeFact, Embedding: []float32{1, 0}, Tags: []string{"urgent"}, CreatedAt: now}
	b := &types.Memory{ID: "b", Type: types.TypeFact, Embedding: []float32{1, 0}, Tags: []string{"other"}, CreatedAt: now}
	ix.Insert(a)
	ix.Insert(b)

	results := retrieval.Rank([]*types.Memory{a, b}, []float32{1, 0}, ix, retrieval.Options{
		Limit: 10, Threshold: 0, Tags: []string{"urgent"}, Now: now,
	})
	require.Len(t, results, 1)
	require.Equal(t, "a", results[0].Memory.ID)
}
