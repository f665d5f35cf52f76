// Package retrieval implements the hybrid ranking pipeline: cosine
// similarity over a candidate set narrowed by secondary indices, optional
// exponential time decay, threshold filtering and deterministic ordering.
package retrieval

import (
	"math"
	"sort"
	"time"

	"github.com/vaultmind/memcore/internal/index"
	"github.com/vaultmind/memcore/pkg/types"
)

// DefaultHalfLifeDays and DefaultMinScore mirror the core design's stated
// constants; callers normally source these from config instead.
const (
	DefaultHalfLifeDays = 30.0
	DefaultMinScore     = 0.1
)

// Options tunes a single ranking pass. Callers fill the fields from request
// overrides or configured defaults. A zero Limit applies no truncation, an
// empty Type or Tags applies no filter, and a non-positive HalfLifeDays or
// MinScore falls back to DefaultHalfLifeDays or DefaultMinScore.
type Options struct {
	Limit        int
	Threshold    float64
	Type         types.MemoryType // empty means unfiltered
	Tags         []string         // any-of
	TimeDecay    bool
	HalfLifeDays float64
	MinScore     float64
	Now          time.Time
}

// Scored pairs a memory with its final ranking score.
type Scored struct {
	Memory *types.Memory
	Score  float64
}

// CandidateSource resolves the id sets the indexer can answer quickly.
type CandidateSource interface {
	ByType(t types.MemoryType) map[string]struct{}
	ByTag(tag string) map[string]struct{}
	Embedding(id string) ([]float32, bool)
}

var _ CandidateSource = (*index.Indexer)(nil)

// Rank scores every memory in pool against the query embedding and returns
// the surfaced subset in final ranking order. pool has already been
// narrowed to the caller's tenant/agent scope by the engine; Rank applies
// the type/tag/semantic/time-decay stages on top of it.
func Rank(pool []*types.Memory, queryEmbedding []float32, cand CandidateSource, opts Options) []Scored {
	allowed := typeTagFilter(pool, cand, opts)

	out := make([]Scored, 0, len(allowed))
	for _, m := range allowed {
		emb, ok := cand.Embedding(m.ID)
		if !ok {
			emb = m.Embedding
		}
		sim := CosineSimilarity(queryEmbedding, emb)
		normalized := (sim + 1) / 2

		final := normalized
		if opts.TimeDecay {
			final = applyDecay(normalized, m, opts)
		}
		// Strict: a candidate must clear the threshold, not merely meet it.
		// Orthogonal embeddings normalize to exactly 0.5, so a 0.5 threshold
		// only excludes them under a strict comparison; a non-strict one
		// would let unrelated content through at the default-ish midpoint.
		if final <= opts.Threshold {
			continue
		}
		out = append(out, Scored{Memory: m, Score: final})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].Memory.UpdatedAt.Equal(out[j].Memory.UpdatedAt) {
			return out[i].Memory.UpdatedAt.After(out[j].Memory.UpdatedAt)
		}
		return out[i].Memory.ID < out[j].Memory.ID
	})

	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out
}

// typeTagFilter narrows pool by opts.Type (equality) and opts.Tags
// (any-of), consulting the indexer's id sets where available and falling
// back to direct field comparison so Rank behaves correctly even when the
// indexer has not yet observed a memory (e.g. during reindex recovery).
func typeTagFilter(pool []*types.Memory, cand CandidateSource, opts Options) []*types.Memory {
	var typeIDs map[string]struct{}
	if opts.Type != "" {
		typeIDs = cand.ByType(opts.Type)
	}
	var tagIDs map[string]struct{}
	if len(opts.Tags) > 0 {
		tagIDs = make(map[string]struct{})
		for _, tag := range opts.Tags {
			for id := range cand.ByTag(tag) {
				tagIDs[id] = struct{}{}
			}
		}
	}

	out := make([]*types.Memory, 0, len(pool))
	for _, m := range pool {
		if opts.Type != "" {
			if _, ok := typeIDs[m.ID]; !ok && m.Type != opts.Type {
				continue
			}
		}
		if len(opts.Tags) > 0 {
			if _, ok := tagIDs[m.ID]; !ok && !anyTagMatch(m.Tags, opts.Tags) {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

func anyTagMatch(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

// applyDecay implements `final = max(MIN_SCORE, normalized_sim * decay)`
// with decay = exp(-Δt_days / HALF_LIFE_DAYS). Δt is measured from
// last_accessed_at when it is set, else created_at.
func applyDecay(normalized float64, m *types.Memory, opts Options) float64 {
	reference := m.CreatedAt
	if !m.LastAccessedAt.IsZero() {
		reference = m.LastAccessedAt
	}
	halfLife := opts.HalfLifeDays
	if halfLife <= 0 {
		halfLife = DefaultHalfLifeDays
	}
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	deltaDays := opts.Now.Sub(reference).Hours() / 24
	if deltaDays < 0 {
		deltaDays = 0
	}
	decay := math.Exp(-deltaDays / halfLife)
	final := normalized * decay
	if final < minScore {
		final = minScore
	}
	return final
}

// CosineSimilarity computes cosine similarity between two f32 vectors with
// f64 accumulation. Mismatched lengths or an all-zero vector yield 0,
// never NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
