package sqlstore

// SchemaPostgres creates the memories table with a native pgvector column.
// Embedding dimension is left unconstrained at the column level; the engine
// enforces the configured dimension before any row reaches the adapter.
const SchemaPostgres = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memories (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	agent_id          TEXT NOT NULL DEFAULT '',
	type              TEXT NOT NULL,
	content           TEXT NOT NULL,
	embedding         vector NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	importance        DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	emotional_weight  DOUBLE PRECISION NOT NULL DEFAULT 0,
	tags              TEXT[] NOT NULL DEFAULT '{}',
	context           JSONB NOT NULL DEFAULT '{}',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	last_accessed_at  TIMESTAMPTZ NOT NULL,
	access_count      BIGINT NOT NULL DEFAULT 0,
	ttl               TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_memories_tenant ON memories (tenant_id);
CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories (tenant_id, agent_id);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories (type);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories (importance);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories (created_at);
CREATE INDEX IF NOT EXISTS idx_memories_updated ON memories (updated_at);
CREATE INDEX IF NOT EXISTS idx_memories_accessed ON memories (last_accessed_at);
CREATE INDEX IF NOT EXISTS idx_memories_tags_gin ON memories USING GIN (tags);
`

// SchemaSQLite mirrors SchemaPostgres for a single-file embedded database.
// SQLite has neither a vector nor an array column type, so embedding and
// tags are stored as JSON text and decoded in scanRow.
const SchemaSQLite = `
CREATE TABLE IF NOT EXISTS memories (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	agent_id          TEXT NOT NULL DEFAULT '',
	type              TEXT NOT NULL,
	content           TEXT NOT NULL,
	embedding         TEXT NOT NULL,
	confidence        REAL NOT NULL DEFAULT 0,
	importance        REAL NOT NULL DEFAULT 0.5,
	emotional_weight  REAL NOT NULL DEFAULT 0,
	tags              TEXT NOT NULL DEFAULT '[]',
	context           TEXT NOT NULL DEFAULT '{}',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL,
	last_accessed_at  DATETIME NOT NULL,
	access_count      INTEGER NOT NULL DEFAULT 0,
	ttl               DATETIME
);

CREATE INDEX IF NOT EXISTS idx_memories_tenant ON memories (tenant_id);
CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories (tenant_id, agent_id);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories (type);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories (importance);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories (created_at);
CREATE INDEX IF NOT EXISTS idx_memories_updated ON memories (updated_at);
CREATE INDEX IF NOT EXISTS idx_memories_accessed ON memories (last_accessed_at);
`
