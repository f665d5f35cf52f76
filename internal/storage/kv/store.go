// Package kv implements the storage.Store contract over Redis. A memory is
// the canonical JSON blob at key "memory:{id}"; secondary indices are
// maintained in the same logical transaction as the primary write:
//   - index:agent:{agent_id}   — set of ids
//   - index:tag:{tag}          — set of ids
//   - index:importance         — sorted set, score = floor(importance*100)
//   - index:timestamp          — sorted set, score = created_at epoch ms
// TTL set on a memory is pushed down to the primary key. Explicit delete
// removes the id from every index; a read miss lazily removes it from the
// two sorted sets only, leaving stale agent and tag set entries in place.
package kv

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vaultmind/memcore/internal/storage"
	"github.com/vaultmind/memcore/pkg/types"
)

// Store adapts a redis.UniversalClient to storage.Store.
type Store struct {
	client redis.UniversalClient
}

// Open connects to addr and wraps it as a Store.
func Open(addr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &Store{client: client}, nil
}

// NewWithClient wraps an already-configured client, useful for tests
// against miniredis or a cluster client.
func NewWithClient(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func (s *Store) Initialize(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return types.NewStorageError(true, err, "kv store: connecting to redis")
	}
	return nil
}

func memoryKey(id string) string        { return "memory:" + id }
func agentIndexKey(agentID string) string { return "index:agent:" + agentID }
func tagIndexKey(tag string) string      { return "index:tag:" + tag }

const importanceIndexKey = "index:importance"
const timestampIndexKey = "index:timestamp"

// wireRecord is the canonical JSON envelope stored at memory:{id}: the
// memory itself plus two reserved fields readers strip before returning to
// callers.
type wireRecord struct {
	types.Memory
	StoredAt int64  `json:"_stored_at"`
	Version  string `json:"_version"`
}

func (s *Store) StoreMemory(ctx context.Context, memory *types.Memory) error {
	pipe := s.client.TxPipeline()
	if err := queueStore(ctx, pipe, memory); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewStorageError(true, err, "kv store: storing memory %s", memory.ID)
	}
	return nil
}

// queueStore encodes memory and queues its primary-key write plus every
// secondary index update onto pipe without executing. Shared by StoreMemory
// (one memory, its own transaction) and BulkStore (every memory in the
// batch queued onto a single transaction, so the batch commits or fails as
// one unit instead of as N independent round trips).
func queueStore(ctx context.Context, pipe redis.Pipeliner, memory *types.Memory) error {
	rec := wireRecord{Memory: *memory, StoredAt: time.Now().UnixMilli(), Version: "1"}
	data, err := json.Marshal(rec)
	if err != nil {
		return types.NewStorageError(false, err, "kv store: encoding memory %s", memory.ID)
	}

	key := memoryKey(memory.ID)
	if memory.TTL != nil {
		pipe.Set(ctx, key, data, time.Until(*memory.TTL))
	} else {
		pipe.Set(ctx, key, data, 0)
	}
	if memory.AgentID != "" {
		pipe.SAdd(ctx, agentIndexKey(memory.AgentID), memory.ID)
	}
	for _, tag := range memory.Tags {
		pipe.SAdd(ctx, tagIndexKey(tag), memory.ID)
	}
	pipe.ZAdd(ctx, importanceIndexKey, redis.Z{Score: math.Floor(memory.Importance * 100), Member: memory.ID})
	pipe.ZAdd(ctx, timestampIndexKey, redis.Z{Score: float64(memory.CreatedAt.UnixMilli()), Member: memory.ID})
	return nil
}

func (s *Store) Retrieve(ctx context.Context, id string) (*types.Memory, error) {
	data, err := s.client.Get(ctx, memoryKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			s.cleanupIndices(ctx, id) // lazy cleanup on read miss
			return nil, types.NewNotFoundError(id)
		}
		return nil, types.NewStorageError(true, err, "kv store: retrieving memory %s", id)
	}

	var rec wireRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, types.NewStorageError(false, err, "kv store: corrupt record %s", id)
	}
	mem := rec.Memory
	return &mem, nil
}

func (s *Store) UpdateMemory(ctx context.Context, id string, patch *types.Patch) (*types.Memory, error) {
	mem, err := s.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}
	oldTags := mem.Tags
	storage.ApplyPatch(mem, patch)

	if err := s.StoreMemory(ctx, mem); err != nil {
		return nil, err
	}
	s.pruneRemovedTags(ctx, id, oldTags, mem.Tags)
	return mem, nil
}

func (s *Store) pruneRemovedTags(ctx context.Context, id string, oldTags, newTags []string) {
	keep := make(map[string]struct{}, len(newTags))
	for _, t := range newTags {
		keep[t] = struct{}{}
	}
	for _, t := range oldTags {
		if _, ok := keep[t]; !ok {
			s.client.SRem(ctx, tagIndexKey(t), id)
		}
	}
}

func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	mem, err := s.Retrieve(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, memoryKey(id))
	if mem.AgentID != "" {
		pipe.SRem(ctx, agentIndexKey(mem.AgentID), id)
	}
	for _, tag := range mem.Tags {
		pipe.SRem(ctx, tagIndexKey(tag), id)
	}
	pipe.ZRem(ctx, importanceIndexKey, id)
	pipe.ZRem(ctx, timestampIndexKey, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewStorageError(true, err, "kv store: deleting memory %s", id)
	}
	return nil
}

// cleanupIndices removes a dangling id from the importance and timestamp
// sorted sets; agent and tag sets are not touched. It is best-effort:
// failures are swallowed since this path only ever runs as a lazy-cleanup
// side effect of a read miss, never as the primary operation.
func (s *Store) cleanupIndices(ctx context.Context, id string) {
	s.client.ZRem(ctx, importanceIndexKey, id)
	s.client.ZRem(ctx, timestampIndexKey, id)
}

// List scans the timestamp index for candidate ids, loads each record, and
// applies the full in-process filter predicate. Redis has no secondary
// query engine, so this is the reference design's tradeoff: indices narrow
// the candidate set for agent/tag filters, but tenant/importance/date
// filters are applied after load.
func (s *Store) List(ctx context.Context, filters storage.Filters) ([]*types.Memory, error) {
	ids, err := s.candidateIDs(ctx, filters)
	if err != nil {
		return nil, err
	}

	var out []*types.Memory
	for _, id := range ids {
		mem, err := s.Retrieve(ctx, id)
		if err != nil {
			continue // index pointed at a since-deleted or expired record
		}
		if storage.Matches(mem, filters) {
			out = append(out, mem)
		}
	}

	storage.SortMemories(out, filters.SortBy)
	return storage.Paginate(out, filters.Offset, filters.Limit), nil
}

func (s *Store) candidateIDs(ctx context.Context, filters storage.Filters) ([]string, error) {
	switch {
	case filters.AgentID != "":
		ids, err := s.client.SMembers(ctx, agentIndexKey(filters.AgentID)).Result()
		if err != nil {
			return nil, types.NewStorageError(true, err, "kv store: reading agent index")
		}
		return ids, nil
	case len(filters.Tags) > 0:
		ids, err := s.client.SMembers(ctx, tagIndexKey(filters.Tags[0])).Result()
		if err != nil {
			return nil, types.NewStorageError(true, err, "kv store: reading tag index")
		}
		return ids, nil
	default:
		ids, err := s.client.ZRevRange(ctx, timestampIndexKey, 0, -1).Result()
		if err != nil {
			return nil, types.NewStorageError(true, err, "kv store: reading timestamp index")
		}
		return ids, nil
	}
}

func (s *Store) Count(ctx context.Context, filters storage.Filters) (int, error) {
	unpaged := filters
	unpaged.Limit, unpaged.Offset = 0, 0
	results, err := s.List(ctx, unpaged)
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

func (s *Store) Clear(ctx context.Context, tenantID string) error {
	ids, err := s.client.ZRange(ctx, timestampIndexKey, 0, -1).Result()
	if err != nil {
		return types.NewStorageError(true, err, "kv store: listing for clear")
	}
	for _, id := range ids {
		mem, err := s.Retrieve(ctx, id)
		if err != nil {
			continue
		}
		if tenantID != "" && mem.TenantID != tenantID {
			continue
		}
		if err := s.DeleteMemory(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// BulkStore queues every memory's writes onto a single MULTI/EXEC
// transaction and commits it in one round trip: either the whole batch is
// applied or, on a queuing or network failure, none of it is. A malformed
// memory (JSON encode failure) is caught while queuing, before any command
// reaches Redis, so the batch is abandoned with nothing written.
func (s *Store) BulkStore(ctx context.Context, memories []*types.Memory) error {
	pipe := s.client.TxPipeline()
	for _, mem := range memories {
		if err := queueStore(ctx, pipe, mem); err != nil {
			pipe.Discard()
			return types.NewStorageError(false, err, "kv store: bulk_store aborted encoding memory %s", mem.ID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewStorageError(true, err, "kv store: bulk_store failed, no memory persisted")
	}
	return nil
}

func (s *Store) Health(ctx context.Context) storage.HealthReport {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storage.HealthReport{Status: types.HealthUnhealthy, Details: err.Error()}
	}
	return storage.HealthReport{Status: types.HealthHealthy, Details: "ok"}
}

func (s *Store) Close() error { return s.client.Close() }

var _ storage.Store = (*Store)(nil)
