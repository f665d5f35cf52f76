// Package sqlstore implements the storage.Store contract over a relational
// backend: Postgres with the pgvector extension for native vector columns,
// or SQLite (via modernc.org/sqlite) storing the embedding as a JSON array
// for single-process deployments. A single "memories" table carries every
// field of the memory entity. Tags are a TEXT[] column with a GIN index on
// Postgres and a JSON array in a TEXT column on SQLite. The SQL query does
// not filter on tags in either dialect; the subset-of tag filter is applied
// in process with storage.Matches after the SQL prefilter.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/vaultmind/memcore/internal/storage"
	"github.com/vaultmind/memcore/pkg/types"
)

// Dialect selects the SQL variant spoken to the underlying driver.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Store implements storage.Store over a *sql.DB for either dialect.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open opens a connection for dialect against dsn and wraps it as a Store.
// For DialectPostgres, dsn is a standard libpq connection string. For
// DialectSQLite, dsn is a file path or ":memory:".
func Open(dialect Dialect, dsn string) (*Store, error) {
	driver := "postgres"
	if dialect == DialectSQLite {
		driver = "sqlite"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, types.NewStorageError(false, err, "sqlstore: opening %s connection", dialect)
	}

	if dialect == DialectSQLite {
		// A single writer connection avoids SQLITE_BUSY under concurrent
		// access; WAL mode lets readers proceed without blocking it.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, types.NewStorageError(false, err, "sqlstore: enabling WAL mode")
		}
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, types.NewStorageError(false, err, "sqlstore: setting busy_timeout")
		}
		if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, types.NewStorageError(false, err, "sqlstore: enabling foreign_keys")
		}
	}

	return &Store{db: db, dialect: dialect}, nil
}

func (s *Store) Initialize(ctx context.Context) error {
	schema := SchemaSQLite
	if s.dialect == DialectPostgres {
		schema = SchemaPostgres
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return types.NewStorageError(false, err, "sqlstore: creating schema")
	}
	return nil
}

func (s *Store) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *Store) StoreMemory(ctx context.Context, memory *types.Memory) error {
	return storeWithExecer(ctx, s.db, s.dialect, memory)
}

func (s *Store) Retrieve(ctx context.Context, id string) (*types.Memory, error) {
	query := fmt.Sprintf("SELECT %s FROM memories WHERE id = %s", selectColumns, s.placeholder(1))
	row := s.db.QueryRowContext(ctx, query, id)
	mem, err := s.scanRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(id)
		}
		return nil, types.NewStorageError(true, err, "sqlstore: retrieving memory %s", id)
	}
	return mem, nil
}

func (s *Store) UpdateMemory(ctx context.Context, id string, patch *types.Patch) (*types.Memory, error) {
	mem, err := s.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}
	storage.ApplyPatch(mem, patch)
	if err := s.StoreMemory(ctx, mem); err != nil {
		return nil, err
	}
	return mem, nil
}

func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM memories WHERE id = %s", s.placeholder(1))
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return types.NewStorageError(true, err, "sqlstore: deleting memory %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.NewStorageError(true, err, "sqlstore: checking delete result for %s", id)
	}
	if n == 0 {
		return types.NewNotFoundError(id)
	}
	return nil
}

func (s *Store) List(ctx context.Context, filters storage.Filters) ([]*types.Memory, error) {
	query, args := s.buildListQuery(filters, false)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.NewStorageError(true, err, "sqlstore: listing memories")
	}
	defer rows.Close()

	var out []*types.Memory
	for rows.Next() {
		mem, err := s.scanRow(rows)
		if err != nil {
			continue // undecodable row: skipped (not counted) rather than failing the list
		}
		if storage.Matches(mem, storage.Filters{Tags: filters.Tags}) {
			out = append(out, mem)
		}
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context, filters storage.Filters) (int, error) {
	unpaged := filters
	unpaged.Limit, unpaged.Offset = 0, 0
	if len(unpaged.Tags) > 0 {
		// Tags are filtered in process, so COUNT(*) would ignore them.
		results, err := s.List(ctx, unpaged)
		if err != nil {
			return 0, err
		}
		return len(results), nil
	}
	query, args := s.buildListQuery(unpaged, true)
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, types.NewStorageError(true, err, "sqlstore: counting memories")
	}
	return count, nil
}

func (s *Store) buildListQuery(filters storage.Filters, countOnly bool) (string, []interface{}) {
	cols := selectColumns
	if countOnly {
		cols = "COUNT(*)"
	}
	var where []string
	var args []interface{}
	n := 1
	add := func(clause string, arg interface{}) {
		where = append(where, fmt.Sprintf(clause, s.placeholder(n)))
		args = append(args, arg)
		n++
	}

	if filters.TenantID != "" {
		add("tenant_id = %s", filters.TenantID)
	}
	if filters.AgentID != "" {
		add("agent_id = %s", filters.AgentID)
	}
	if filters.Type != "" {
		add("type = %s", string(filters.Type))
	}
	if filters.MinImportance != nil {
		add("importance >= %s", *filters.MinImportance)
	}
	if filters.MaxImportance != nil {
		add("importance <= %s", *filters.MaxImportance)
	}
	if filters.StartDate != nil {
		add("created_at >= %s", *filters.StartDate)
	}
	if filters.EndDate != nil {
		add("created_at <= %s", *filters.EndDate)
	}

	query := "SELECT " + cols + " FROM memories"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if !countOnly {
		query += " ORDER BY " + orderByClause(filters.SortBy)
		if filters.Limit > 0 {
			query += fmt.Sprintf(" LIMIT %d", filters.Limit)
		}
		if filters.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filters.Offset)
		}
	}
	return query, args
}

func orderByClause(by types.SortField) string {
	switch by {
	case types.SortByCreated:
		return "created_at DESC, id ASC"
	case types.SortByAccessed:
		return "last_accessed_at DESC, id ASC"
	case types.SortByImportance:
		return "importance DESC, id ASC"
	default:
		return "updated_at DESC, id ASC"
	}
}

func (s *Store) Clear(ctx context.Context, tenantID string) error {
	query := "DELETE FROM memories"
	var args []interface{}
	if tenantID != "" {
		query += fmt.Sprintf(" WHERE tenant_id = %s", s.placeholder(1))
		args = append(args, tenantID)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return types.NewStorageError(true, err, "sqlstore: clearing tenant %s", tenantID)
	}
	return nil
}

func (s *Store) BulkStore(ctx context.Context, memories []*types.Memory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.NewStorageError(true, err, "sqlstore: beginning bulk transaction")
	}

	for _, mem := range memories {
		if err := storeWithExecer(ctx, tx, s.dialect, mem); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return types.NewStorageError(true, err, "sqlstore: committing bulk transaction")
	}
	return nil
}

func (s *Store) Health(ctx context.Context) storage.HealthReport {
	if err := s.db.PingContext(ctx); err != nil {
		return storage.HealthReport{Status: types.HealthUnhealthy, Details: err.Error()}
	}
	return storage.HealthReport{Status: types.HealthHealthy, Details: "ok"}
}

func (s *Store) Close() error { return s.db.Close() }

// row holds the pre-formatted scalar fields shared by both dialects; the
// embedding/tags encoding differs per dialect so it stays in storeWithExecer.
type row struct {
	id, tenantID, agentID, memType, content string
	confidence, importance, emotionalWeight float64
	context                                 string
	createdAt, updatedAt, lastAccessedAt    time.Time
	accessCount                             int64
	ttl                                     *time.Time
}

func toRow(m *types.Memory) (row, error) {
	ctxJSON, err := json.Marshal(m.Context)
	if err != nil {
		return row{}, err
	}
	return row{
		id: m.ID, tenantID: m.TenantID, agentID: m.AgentID, memType: string(m.Type), content: m.Content,
		confidence: m.Confidence, importance: m.Importance, emotionalWeight: m.EmotionalWeight,
		context: string(ctxJSON), createdAt: m.CreatedAt, updatedAt: m.UpdatedAt,
		lastAccessedAt: m.LastAccessedAt, accessCount: m.AccessCount, ttl: m.TTL,
	}, nil
}

const selectColumns = "id, tenant_id, agent_id, type, content, embedding, confidence, importance, " +
	"emotional_weight, tags, context, created_at, updated_at, last_accessed_at, access_count, ttl"

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanRow(r scanner) (*types.Memory, error) {
	var mem types.Memory
	var memType, ctxJSON string
	var embRaw interface{}
	var tagsRaw interface{}
	var ttl sql.NullTime

	if err := r.Scan(&mem.ID, &mem.TenantID, &mem.AgentID, &memType, &mem.Content, &embRaw,
		&mem.Confidence, &mem.Importance, &mem.EmotionalWeight, &tagsRaw, &ctxJSON,
		&mem.CreatedAt, &mem.UpdatedAt, &mem.LastAccessedAt, &mem.AccessCount, &ttl); err != nil {
		return nil, err
	}

	mem.Type = types.MemoryType(memType)
	if ttl.Valid {
		t := ttl.Time
		mem.TTL = &t
	}

	embedding, err := decodeEmbedding(s.dialect, embRaw)
	if err != nil {
		return nil, err
	}
	mem.Embedding = embedding

	tags, err := decodeTags(s.dialect, tagsRaw)
	if err != nil {
		return nil, err
	}
	mem.Tags = tags

	if ctxJSON != "" {
		if err := json.Unmarshal([]byte(ctxJSON), &mem.Context); err != nil {
			return nil, err
		}
	}
	return &mem, nil
}

func decodeEmbedding(dialect Dialect, raw interface{}) ([]float32, error) {
	switch dialect {
	case DialectPostgres:
		v, ok := raw.(pgvector.Vector)
		if !ok {
			// the pgvector driver returns the raw wire string when scanned
			// into interface{}; fall back to the typed scan path.
			var parsed pgvector.Vector
			if err := parsed.Scan(raw); err != nil {
				return nil, fmt.Errorf("sqlstore: unexpected embedding scan type %T: %w", raw, err)
			}
			return parsed.Slice(), nil
		}
		return v.Slice(), nil
	default:
		s, ok := raw.(string)
		if !ok {
			if b, ok := raw.([]byte); ok {
				s = string(b)
			} else {
				return nil, fmt.Errorf("sqlstore: unexpected embedding scan type %T", raw)
			}
		}
		var out []float32
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func decodeTags(dialect Dialect, raw interface{}) ([]string, error) {
	switch dialect {
	case DialectPostgres:
		var tags pq.StringArray
		switch v := raw.(type) {
		case []byte:
			if err := tags.Scan(v); err != nil {
				return nil, err
			}
		case string:
			if err := tags.Scan(v); err != nil {
				return nil, err
			}
		}
		return []string(tags), nil
	default:
		s, ok := raw.(string)
		if !ok {
			if b, ok := raw.([]byte); ok {
				s = string(b)
			}
		}
		if s == "" {
			return nil, nil
		}
		var out []string
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// storeWithExecer runs the same upsert StoreMemory issues, but against any
// execer (a *sql.DB or an in-flight *sql.Tx), so BulkStore can share the
// encoding logic while running every statement inside one transaction.
func storeWithExecer(ctx context.Context, ex execer, dialect Dialect, memory *types.Memory) error {
	r, err := toRow(memory)
	if err != nil {
		return types.NewStorageError(false, err, "sqlstore: encoding memory %s", memory.ID)
	}

	if dialect == DialectPostgres {
		query := `
			INSERT INTO memories (id, tenant_id, agent_id, type, content, embedding, confidence,
				importance, emotional_weight, tags, context, created_at, updated_at, last_accessed_at,
				access_count, ttl)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (id) DO UPDATE SET
				tenant_id=EXCLUDED.tenant_id, agent_id=EXCLUDED.agent_id, type=EXCLUDED.type,
				content=EXCLUDED.content, embedding=EXCLUDED.embedding, confidence=EXCLUDED.confidence,
				importance=EXCLUDED.importance, emotional_weight=EXCLUDED.emotional_weight,
				tags=EXCLUDED.tags, context=EXCLUDED.context, updated_at=EXCLUDED.updated_at,
				last_accessed_at=EXCLUDED.last_accessed_at, access_count=EXCLUDED.access_count, ttl=EXCLUDED.ttl`
		_, err = ex.ExecContext(ctx, query, r.id, r.tenantID, r.agentID, r.memType, r.content,
			pgvector.NewVector(memory.Embedding), r.confidence, r.importance, r.emotionalWeight,
			pq.Array(memory.Tags), r.context, r.createdAt, r.updatedAt, r.lastAccessedAt,
			r.accessCount, r.ttl)
		if err != nil {
			return types.NewStorageError(true, err, "sqlstore: storing memory %s", memory.ID)
		}
		return nil
	}

	embJSON, jerr := json.Marshal(memory.Embedding)
	if jerr != nil {
		return types.NewStorageError(false, jerr, "sqlstore: encoding embedding for %s", memory.ID)
	}
	tagsJSON, jerr := json.Marshal(memory.Tags)
	if jerr != nil {
		return types.NewStorageError(false, jerr, "sqlstore: encoding tags for %s", memory.ID)
	}
	query := `
		INSERT INTO memories (id, tenant_id, agent_id, type, content, embedding, confidence,
			importance, emotional_weight, tags, context, created_at, updated_at, last_accessed_at,
			access_count, ttl)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id=excluded.tenant_id, agent_id=excluded.agent_id, type=excluded.type,
			content=excluded.content, embedding=excluded.embedding, confidence=excluded.confidence,
			importance=excluded.importance, emotional_weight=excluded.emotional_weight,
			tags=excluded.tags, context=excluded.context, updated_at=excluded.updated_at,
			last_accessed_at=excluded.last_accessed_at, access_count=excluded.access_count, ttl=excluded.ttl`
	_, err = ex.ExecContext(ctx, query, r.id, r.tenantID, r.agentID, r.memType, r.content,
		string(embJSON), r.confidence, r.importance, r.emotionalWeight, string(tagsJSON),
		r.context, r.createdAt, r.updatedAt, r.lastAccessedAt, r.accessCount, r.ttl)
	if err != nil {
		return types.NewStorageError(true, err, "sqlstore: storing memory %s", memory.ID)
	}
	return nil
}
