// Package engine implements the Advanced Memory Engine: the orchestrator
// that ties the embedding client, storage adapter and indexer together
// behind the public remember/recall/forget/update/context/stats/health
// surface.
package engine

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultmind/memcore/pkg/types"
)

// RememberOptions carries the caller-supplied overrides for remember. A nil
// Type or Importance is derived by the engine instead (type via the
// classifier, importance via the heuristic scorer); other nil or empty
// fields leave the corresponding memory field at its zero value.
type RememberOptions struct {
	Type            *types.MemoryType
	Importance      *float64
	EmotionalWeight *float64
	Tags            []string
	Context         map[string]types.Value
	TTL             *time.Time
	Confidence      *float64
}

// RecallOptions carries the caller-supplied overrides for recall. Fields
// left at their zero value are replaced with the engine's configured
// defaults before ranking.
type RecallOptions struct {
	Limit          int
	LimitSet       bool // true iff the caller explicitly set Limit, even to 0
	Threshold      float64
	ThresholdSet   bool
	Type           types.MemoryType
	Tags           []string
	TimeDecay      *bool
	IncludeContext *bool
}

// ContextRequest synthesizes a recall from a topic (or "most recent
// important" when empty) plus optional type filtering.
type ContextRequest struct {
	Topic        string
	MemoryTypes  []types.MemoryType
	MaxMemories  int
	AgentID      string
}

// ContextResponse is the engine's synthesized answer to a context request.
type ContextResponse struct {
	Memories    []ScoredMemory
	Summary     string
	Confidence  float64
	GeneratedAt time.Time
	TotalCount  int
}

// ScoredMemory pairs a surfaced memory with its recall score.
type ScoredMemory struct {
	Memory *types.Memory
	Score  float64
}

// Stats is the aggregate snapshot returned by Engine.Stats.
type Stats struct {
	Total              int
	ByType             map[types.MemoryType]int
	AvgImportance      float64
	RecentActivity24h  int
	IndexSizes         map[string]int
}

// Health is the structured health report returned by Engine.Health.
type Health struct {
	Status      types.HealthStatus
	Initialized bool
	Checks      map[string]bool
	Timestamp   time.Time
}

// newMemoryID returns a fresh globally-unique memory identifier.
func newMemoryID() string {
	return "mem_" + uuid.NewString()
}

// shardedMutex is a fixed-size array of mutexes keyed by a hash of the
// memory id. It lets update/forget serialize mutations to a single id
// without blocking unrelated ids under write pressure, per the
// engine's locking discipline: the global lock only ever guards the
// indices and the initialized flag, never a single id's store+index
// mutation.
type shardedMutex struct {
	shards [shardCount]sync.Mutex
}

const shardCount = 64

func (s *shardedMutex) lock(id string) func() {
	idx := fnv32(id) % shardCount
	s.shards[idx].Lock()
	return s.shards[idx].Unlock
}

func fnv32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
