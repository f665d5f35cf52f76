package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vaultmind/memcore/internal/classify"
	"github.com/vaultmind/memcore/internal/config"
	"github.com/vaultmind/memcore/internal/embedding"
	"github.com/vaultmind/memcore/internal/index"
	"github.com/vaultmind/memcore/internal/metrics"
	"github.com/vaultmind/memcore/internal/retrieval"
	"github.com/vaultmind/memcore/internal/storage"
	"github.com/vaultmind/memcore/pkg/types"
)

var knownHealthStatuses = []string{string(types.HealthHealthy), string(types.HealthDegraded), string(types.HealthUnhealthy)}

const (
	defaultRecallLimit  = 10
	maxRecallLimit      = 100
	defaultContextLimit = 20
	maxContextLimit     = 50
)

// Engine is the sole externally exposed surface of the memory core. It
// composes the embedding client, storage adapter and indexer and serializes
// the cross-cutting invariants (index/storage consistency, tenant
// isolation) that no single component can enforce alone.
type Engine struct {
	cfg      *config.Config
	store    storage.Store
	embedder embedding.Client
	indexer  *index.Indexer
	log      zerolog.Logger

	mu          sync.RWMutex // guards initialized/closed and the indexer
	shards      shardedMutex // per-id serialization for update/forget
	initialized bool
	closed      bool

	degraded bool // set when a reindex is pending after an IndexError
}

// New constructs an Engine from its three leaf dependencies. Initialize
// must be called before any other operation.
func New(cfg *config.Config, store storage.Store, embedder embedding.Client) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		indexer:  index.New(),
		log:      log.With().Str("component", "engine").Logger(),
	}
}

// Initialize opens the adapter and rebuilds every index from persisted
// state. It is idempotent: calling it again after a successful call is a
// no-op. A persisted memory whose embedding does not match the configured
// dimension fails the entire call; init never silently skips a record.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}

	if err := e.store.Initialize(ctx); err != nil {
		return types.NewStorageError(true, err, "initializing storage adapter")
	}

	all, err := e.store.List(ctx, storage.Filters{})
	if err != nil {
		return types.NewStorageError(true, err, "loading persisted memories at init")
	}

	for _, m := range all {
		if len(m.Embedding) != e.cfg.Vector.Dimension {
			return types.NewConfigError(
				"persisted memory %q has embedding dimension %d, configured dimension is %d",
				m.ID, len(m.Embedding), e.cfg.Vector.Dimension,
			)
		}
	}

	e.indexer.ReindexAll(all)
	e.initialized = true
	e.degraded = false
	return nil
}

func (e *Engine) checkInitialized() error {
	if !e.initialized || e.closed {
		return types.NewNotInitializedError("engine")
	}
	return nil
}

// instrument returns a deferred callback that records the outcome and
// latency of operation. Call as: defer instrument("remember")(&err).
func instrument(operation string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		outcome := "ok"
		if errp != nil && *errp != nil {
			outcome = "error"
			if e, ok := (*errp).(*types.Error); ok {
				outcome = string(e.Kind)
			}
		}
		metrics.OperationsTotal.WithLabelValues(operation, outcome).Inc()
		metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// Remember embeds, classifies, scores and persists a new memory, then
// indexes it. Storage and embedding failures leave no index mutation
// behind.
func (e *Engine) Remember(ctx context.Context, content, tenantID, agentID string, opts RememberOptions) (id string, err error) {
	defer instrument("remember")(&err)

	e.mu.RLock()
	initErr := e.checkInitialized()
	e.mu.RUnlock()
	if initErr != nil {
		return "", initErr
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", types.NewValidationError("content must not be empty")
	}
	if strings.TrimSpace(tenantID) == "" {
		return "", types.NewValidationError("tenant_id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Overall())
	defer cancel()

	embCtx, embCancel := context.WithTimeout(ctx, e.cfg.Timeouts.Embedding())
	vec, err := e.embedder.Embed(embCtx, trimmed)
	embCancel()
	if err != nil {
		return "", types.NewEmbeddingError(true, err, "embedding memory content")
	}
	if len(vec) != e.cfg.Vector.Dimension {
		return "", types.NewEmbeddingError(false, nil, "embedding returned dimension %d, expected %d", len(vec), e.cfg.Vector.Dimension)
	}

	memType := classify.Classify(trimmed)
	if opts.Type != nil {
		if !types.IsValidMemoryType(*opts.Type) {
			return "", types.NewValidationError("type %q is not a valid memory type", *opts.Type)
		}
		memType = *opts.Type
	}
	importance := classify.Score(trimmed)
	if opts.Importance != nil {
		importance = clampImportance(*opts.Importance)
	}

	now := time.Now().UTC()
	m := &types.Memory{
		ID:              newMemoryID(),
		TenantID:        tenantID,
		AgentID:         agentID,
		Type:            memType,
		Content:         trimmed,
		Embedding:       vec,
		Importance:      importance,
		CreatedAt:       now,
		UpdatedAt:       now,
		LastAccessedAt:  now,
	}
	if opts.Confidence != nil {
		m.Confidence = *opts.Confidence
	}
	if opts.EmotionalWeight != nil {
		m.EmotionalWeight = *opts.EmotionalWeight
	}
	if opts.Tags != nil {
		m.Tags = dedupe(opts.Tags)
	}
	if opts.Context != nil {
		m.Context = opts.Context
	}
	m.TTL = opts.TTL

	storeCtx, storeCancel := context.WithTimeout(ctx, e.cfg.Timeouts.Adapter())
	err = e.store.StoreMemory(storeCtx, m)
	storeCancel()
	if err != nil {
		return "", types.NewStorageError(true, err, "storing memory %s", m.ID)
	}

	// Cancellation between store and index must not orphan the record: if
	// the context is already done here, still complete the index insert
	// rather than leave a stored-but-unindexed memory behind.
	e.mu.Lock()
	e.indexer.Insert(m)
	e.mu.Unlock()

	if ctx.Err() != nil {
		return m.ID, types.NewTimeoutError("remember")
	}
	return m.ID, nil
}

// Recall ranks stored memories against query and returns the surfaced
// subset in final order, bumping access metadata on every memory it
// returns.
func (e *Engine) Recall(ctx context.Context, query, tenantID, agentID string, opts RecallOptions) (results []ScoredMemory, err error) {
	defer instrument("recall")(&err)

	e.mu.RLock()
	initErr := e.checkInitialized()
	e.mu.RUnlock()
	if initErr != nil {
		return nil, initErr
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, types.NewValidationError("tenant_id is required")
	}

	limit := e.cfg.Retrieval.DefaultLimit
	if opts.LimitSet {
		limit = opts.Limit
	}
	if limit < 0 || limit > maxRecallLimit {
		return nil, types.NewValidationError("limit must be between 0 and %d", maxRecallLimit)
	}
	if limit == 0 {
		return []ScoredMemory{}, nil
	}

	threshold := e.cfg.Retrieval.DefaultThreshold
	if opts.ThresholdSet {
		threshold = opts.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, types.NewValidationError("threshold must be in [0,1]")
	}

	timeDecay := true
	if opts.TimeDecay != nil {
		timeDecay = *opts.TimeDecay
	}

	includeContext := true
	if opts.IncludeContext != nil {
		includeContext = *opts.IncludeContext
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Overall())
	defer cancel()

	embCtx, embCancel := context.WithTimeout(ctx, e.cfg.Timeouts.Embedding())
	q, err := e.embedder.Embed(embCtx, query)
	embCancel()
	if err != nil {
		return nil, types.NewEmbeddingError(true, err, "embedding recall query")
	}

	listCtx, listCancel := context.WithTimeout(ctx, e.cfg.Timeouts.Adapter())
	pool, err := e.store.List(listCtx, storage.Filters{TenantID: tenantID, AgentID: agentID})
	listCancel()
	if err != nil {
		return nil, types.NewStorageError(true, err, "listing candidate memories for recall")
	}
	pool = dropExpired(pool, time.Now().UTC())

	e.mu.RLock()
	ranked := retrieval.Rank(pool, q, e.indexer, retrieval.Options{
		Limit:        limit,
		Threshold:    threshold,
		Type:         opts.Type,
		Tags:         opts.Tags,
		TimeDecay:    timeDecay,
		HalfLifeDays: e.cfg.Retrieval.HalfLifeDays,
		MinScore:     e.cfg.Retrieval.MinScore,
		Now:          time.Now().UTC(),
	})
	e.mu.RUnlock()

	out := make([]ScoredMemory, 0, len(ranked))
	for _, r := range ranked {
		e.bumpAccess(ctx, r.Memory)
		// Callers never hold a mutable alias into engine-owned state: hand
		// back a clone, not the pointer bumpAccess (and the indexer) keep.
		m := r.Memory.Clone()
		if !includeContext {
			m.Context = nil
		}
		out = append(out, ScoredMemory{Memory: m, Score: r.Score})
	}
	return out, nil
}

// bumpAccess increments access metadata and writes it through best-effort;
// failure is logged, never propagated to the caller, per the access-
// metadata write-through policy.
func (e *Engine) bumpAccess(ctx context.Context, m *types.Memory) {
	m.AccessCount++
	m.LastAccessedAt = time.Now().UTC()

	writeCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Adapter())
	defer cancel()
	if err := e.store.StoreMemory(writeCtx, m); err != nil {
		e.log.Warn().Err(err).Str("memory_id", m.ID).Msg("access metadata write-through failed")
	}
}

// ForgetByID removes a memory from storage and every index. Returns false,
// nil if the memory did not exist; that case is not an error.
func (e *Engine) ForgetByID(ctx context.Context, id string) (removed bool, err error) {
	defer instrument("forget_by_id")(&err)

	e.mu.RLock()
	initErr := e.checkInitialized()
	e.mu.RUnlock()
	if initErr != nil {
		return false, initErr
	}

	unlock := e.shards.lock(id)
	defer unlock()

	m, err := e.store.Retrieve(ctx, id)
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return false, nil
		}
		return false, types.NewStorageError(true, err, "retrieving memory %s before forget", id)
	}

	e.mu.Lock()
	e.indexer.Remove(m)
	e.mu.Unlock()

	if err := e.store.DeleteMemory(ctx, id); err != nil {
		return false, types.NewStorageError(true, err, "deleting memory %s", id)
	}
	return true, nil
}

// ForgetByQuery recalls with a low base threshold and deletes every result
// whose similarity meets confirmThreshold, returning the count removed.
func (e *Engine) ForgetByQuery(ctx context.Context, query, tenantID, agentID string, confirmThreshold float64) (count int, err error) {
	defer instrument("forget_by_query")(&err)

	candidates, err := e.Recall(ctx, query, tenantID, agentID, RecallOptions{
		Limit: maxRecallLimit, LimitSet: true, Threshold: 0, ThresholdSet: true, TimeDecay: boolPtr(false),
	})
	if err != nil {
		return 0, err
	}

	count = 0
	for _, c := range candidates {
		if c.Score < confirmThreshold {
			continue
		}
		removed, err := e.ForgetByID(ctx, c.Memory.ID)
		if err != nil {
			return count, err
		}
		if removed {
			count++
		}
	}
	return count, nil
}

// Update applies a partial patch to an existing memory, re-stamping
// updated_at and re-indexing the memory: it is removed from and reinserted
// into every index, whether or not that index's keys changed.
func (e *Engine) Update(ctx context.Context, id string, patch *types.Patch) (updated *types.Memory, err error) {
	defer instrument("update")(&err)

	e.mu.RLock()
	initErr := e.checkInitialized()
	e.mu.RUnlock()
	if initErr != nil {
		return nil, initErr
	}

	unlock := e.shards.lock(id)
	defer unlock()

	before, err := e.store.Retrieve(ctx, id)
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return nil, types.NewNotFoundError(id)
		}
		return nil, types.NewStorageError(true, err, "retrieving memory %s before update", id)
	}

	after, err := e.store.UpdateMemory(ctx, id, patch)
	if err != nil {
		return nil, types.NewStorageError(true, err, "updating memory %s", id)
	}

	e.mu.Lock()
	e.indexer.Remove(before)
	e.indexer.Insert(after)
	e.mu.Unlock()

	return after.Clone(), nil
}

// Context synthesizes a recall from request.Topic (or "most recent
// important" when empty), filters by request.MemoryTypes, and composes a
// textual summary from type counts, top tags and the covered time range.
func (e *Engine) Context(ctx context.Context, tenantID string, request ContextRequest) (resp *ContextResponse, err error) {
	defer instrument("context")(&err)

	limit := request.MaxMemories
	if limit == 0 {
		limit = defaultContextLimit
	}
	if limit > maxContextLimit {
		limit = maxContextLimit
	}

	query := request.Topic
	if query == "" {
		query = "recent important memories"
	}

	results, err := e.Recall(ctx, query, tenantID, request.AgentID, RecallOptions{
		Limit: limit, LimitSet: true, Threshold: 0, ThresholdSet: true, TimeDecay: boolPtr(true),
	})
	if err != nil {
		return nil, err
	}

	if len(request.MemoryTypes) > 0 {
		allowed := make(map[types.MemoryType]struct{}, len(request.MemoryTypes))
		for _, t := range request.MemoryTypes {
			allowed[t] = struct{}{}
		}
		filtered := results[:0]
		for _, r := range results {
			if _, ok := allowed[r.Memory.Type]; ok {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	summary, confidence := summarize(results)
	return &ContextResponse{
		Memories:    results,
		Summary:     summary,
		Confidence:  confidence,
		GeneratedAt: time.Now().UTC(),
		TotalCount:  len(results),
	}, nil
}

func summarize(results []ScoredMemory) (string, float64) {
	if len(results) == 0 {
		return "no relevant memories found", 0
	}

	byType := make(map[types.MemoryType]int)
	tagCounts := make(map[string]int)
	var oldest, newest time.Time
	var scoreSum float64

	for i, r := range results {
		byType[r.Memory.Type]++
		for _, tag := range r.Memory.Tags {
			tagCounts[tag]++
		}
		scoreSum += r.Score
		if i == 0 || r.Memory.CreatedAt.Before(oldest) {
			oldest = r.Memory.CreatedAt
		}
		if i == 0 || r.Memory.CreatedAt.After(newest) {
			newest = r.Memory.CreatedAt
		}
	}

	topTags := topN(tagCounts, 3)

	var parts []string
	typeParts := make([]string, 0, len(byType))
	for t, n := range byType {
		typeParts = append(typeParts, fmt.Sprintf("%d %s", n, t))
	}
	sort.Strings(typeParts)
	parts = append(parts, fmt.Sprintf("%d memories (%s)", len(results), strings.Join(typeParts, ", ")))
	if len(topTags) > 0 {
		parts = append(parts, fmt.Sprintf("top tags: %s", strings.Join(topTags, ", ")))
	}
	parts = append(parts, fmt.Sprintf("spanning %s to %s", oldest.Format("2006-01-02"), newest.Format("2006-01-02")))

	return strings.Join(parts, "; "), scoreSum / float64(len(results))
}

func topN(counts map[string]int, n int) []string {
	type kv struct {
		k string
		v int
	}
	list := make([]kv, 0, len(counts))
	for k, v := range counts {
		list = append(list, kv{k, v})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].v != list[j].v {
			return list[i].v > list[j].v
		}
		return list[i].k < list[j].k
	})
	if len(list) > n {
		list = list[:n]
	}
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.k
	}
	return out
}

// Stats aggregates totals, per-type counts, average importance, recent
// activity and index sizes.
func (e *Engine) Stats(ctx context.Context) (stats *Stats, err error) {
	defer instrument("stats")(&err)

	if err := e.checkInitialized(); err != nil {
		return nil, err
	}

	all, err := e.store.List(ctx, storage.Filters{})
	if err != nil {
		return nil, types.NewStorageError(true, err, "listing memories for stats")
	}
	all = dropExpired(all, time.Now().UTC())

	byType := make(map[types.MemoryType]int)
	var importanceSum float64
	recent := 0
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	for _, m := range all {
		byType[m.Type]++
		importanceSum += m.Importance
		if m.LastAccessedAt.After(cutoff) {
			recent++
		}
	}

	avg := 0.0
	if len(all) > 0 {
		avg = importanceSum / float64(len(all))
	}

	e.mu.RLock()
	sizes := e.indexer.Sizes()
	e.mu.RUnlock()

	for name, n := range sizes {
		metrics.IndexSize.WithLabelValues(name).Set(float64(n))
	}

	return &Stats{
		Total:             len(all),
		ByType:            byType,
		AvgImportance:     avg,
		RecentActivity24h: recent,
		IndexSizes:        sizes,
	}, nil
}

// Health reports engine and component status: unhealthy when the engine is
// not initialized; degraded while a reindex is pending after a failed
// Reindex, whatever the checks say; otherwise healthy iff the storage
// adapter and an embedding probe both succeed, degraded iff exactly one
// fails, and unhealthy when both fail.
func (e *Engine) Health(ctx context.Context) *Health {
	defer func() { metrics.OperationsTotal.WithLabelValues("health", "ok").Inc() }()

	e.mu.RLock()
	initialized := e.initialized && !e.closed
	degraded := e.degraded
	e.mu.RUnlock()

	checks := make(map[string]bool, 2)

	storageOK := false
	if initialized {
		report := e.store.Health(ctx)
		storageOK = report.Status == types.HealthHealthy
	}
	checks["storage"] = storageOK

	embeddingOK := false
	if initialized {
		probeCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Embedding())
		_, err := e.embedder.Embed(probeCtx, "health probe")
		cancel()
		embeddingOK = err == nil
	}
	checks["embedding"] = embeddingOK

	status := types.HealthUnhealthy
	switch {
	case !initialized:
		status = types.HealthUnhealthy
	case degraded:
		status = types.HealthDegraded
	case storageOK && embeddingOK:
		status = types.HealthHealthy
	case storageOK || embeddingOK:
		status = types.HealthDegraded
	}

	metrics.SetHealthStatus(string(status), knownHealthStatuses...)

	return &Health{
		Status:      status,
		Initialized: initialized,
		Checks:      checks,
		Timestamp:   time.Now().UTC(),
	}
}

// Close flushes the storage adapter and drops the in-memory indices.
// Subsequent calls to any other operation fail with NotInitialized.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized || e.closed {
		return types.NewNotInitializedError("engine")
	}

	if err := e.store.Close(); err != nil {
		e.log.Warn().Err(err).Msg("storage close failed during engine shutdown")
	}
	e.indexer.ReindexAll(nil)
	e.closed = true
	e.initialized = false
	return nil
}

// Reindex rebuilds every in-memory index from storage. It is the recovery
// path after an IndexError; a successful reindex clears degraded status.
func (e *Engine) Reindex(ctx context.Context) (err error) {
	defer instrument("reindex")(&err)

	all, err := e.store.List(ctx, storage.Filters{})
	if err != nil {
		e.mu.Lock()
		e.degraded = true
		e.mu.Unlock()
		return types.NewIndexError(err, "reindex_all failed to list memories")
	}

	e.mu.Lock()
	e.indexer.ReindexAll(all)
	e.degraded = false
	e.mu.Unlock()

	for name, n := range e.indexer.Sizes() {
		metrics.IndexSize.WithLabelValues(name).Set(float64(n))
	}
	return nil
}

func dropExpired(memories []*types.Memory, now time.Time) []*types.Memory {
	out := memories[:0]
	for _, m := range memories {
		if !m.Expired(now) {
			out = append(out, m)
		}
	}
	return out
}

func clampImportance(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
