// Package storage defines the pluggable storage adapter contract the engine
// uses for durable persistence, plus the filter/pagination vocabulary shared
// by every backend. Three adapters satisfy the contract as reference
// designs: an in-process file store (internal/storage/file), a relational
// store over Postgres/pgvector or SQLite (internal/storage/sqlstore), and a
// Redis-backed key/value store (internal/storage/kv).
package storage

import (
	"context"
	"time"

	"github.com/vaultmind/memcore/pkg/types"
)

// Filters narrows a list or count call. Zero-valued fields are not applied.
type Filters struct {
	TenantID      string
	AgentID       string
	Type          types.MemoryType
	Tags          []string // subset-of match: every listed tag must be present
	MinImportance *float64
	MaxImportance *float64
	StartDate     *time.Time
	EndDate       *time.Time
	SortBy        types.SortField
	Limit         int
	Offset        int
}

// HealthReport is returned by an adapter's Health check.
type HealthReport struct {
	Status  types.HealthStatus
	Details string
}

// Store is the pluggable persistence contract every backend implements.
// Implementations guarantee: reads observe the latest committed write for a
// given id; failed writes leave storage unchanged; List may see concurrent
// inserts or miss them but never returns a torn record.
type Store interface {
	// Initialize is idempotent; it creates any schemas the backend needs.
	Initialize(ctx context.Context) error

	// StoreMemory upserts by id, atomically.
	StoreMemory(ctx context.Context, memory *types.Memory) error

	// Retrieve returns the memory for id, or a NotFound *types.Error.
	Retrieve(ctx context.Context, id string) (*types.Memory, error)

	// UpdateMemory applies an adapter-level partial update, atomically.
	// Returns a NotFound *types.Error if id does not exist.
	UpdateMemory(ctx context.Context, id string, patch *types.Patch) (*types.Memory, error)

	// DeleteMemory removes a memory. Returns a NotFound *types.Error if
	// id does not exist.
	DeleteMemory(ctx context.Context, id string) error

	// List returns memories matching filters.
	List(ctx context.Context, filters Filters) ([]*types.Memory, error)

	// Count returns the number of memories matching filters.
	Count(ctx context.Context, filters Filters) (int, error)

	// Clear removes all memories for tenantID, or every memory if
	// tenantID is empty.
	Clear(ctx context.Context, tenantID string) error

	// BulkStore upserts every memory transactionally: on any failure,
	// nothing in the batch persists.
	BulkStore(ctx context.Context, memories []*types.Memory) error

	// Health reports the backend's current status.
	Health(ctx context.Context) HealthReport

	// Close releases resources held by the store.
	Close() error
}
