// Package index maintains the in-memory secondary indices the retrieval
// pipeline uses to narrow a recall to a candidate set before scoring. All
// four indices are reconstructible from storage and carry no data of
// record; losing them is a recoverable event, not a data-loss event.
package index

import (
	"strings"
	"sync"

	"github.com/vaultmind/memcore/pkg/types"
)

const maxTokensPerDoc = 64
const minTokenLength = 3

// Indexer holds the four secondary indices described in the core design:
// by_type, by_tag, by_keyword and by_semantic. Callers are expected to
// invoke Insert/Remove while holding the engine's write lock; in addition,
// every method guards the maps with the indexer's own RWMutex.
type Indexer struct {
	mu         sync.RWMutex
	byType     map[types.MemoryType]map[string]struct{}
	byTag      map[string]map[string]struct{}
	byKeyword  map[string]map[string]struct{}
	bySemantic map[string][]float32
	docTokens  map[string][]string // remembers which tokens a doc contributed, for Remove
}

// New returns an empty Indexer.
func New() *Indexer {
	return &Indexer{
		byType:     make(map[types.MemoryType]map[string]struct{}),
		byTag:      make(map[string]map[string]struct{}),
		byKeyword:  make(map[string]map[string]struct{}),
		bySemantic: make(map[string][]float32),
		docTokens:  make(map[string][]string),
	}
}

// Insert adds memory to every index. Idempotent: inserting the same memory
// twice leaves the indices in the same state as inserting it once.
func (ix *Indexer) Insert(memory *types.Memory) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(memory.ID, ix.docTokens[memory.ID])
	ix.insertLocked(memory)
}

func (ix *Indexer) insertLocked(memory *types.Memory) {
	addTo(ix.byType, memory.Type, memory.ID)
	for _, tag := range memory.Tags {
		addTo(ix.byTag, tag, memory.ID)
	}
	tokens := tokenize(memory.Content)
	for _, tok := range tokens {
		addTo(ix.byKeyword, tok, memory.ID)
	}
	ix.docTokens[memory.ID] = tokens
	ix.bySemantic[memory.ID] = memory.Embedding
}

// Remove deletes memory from every index. Idempotent: removing an id that
// is not present is a no-op.
func (ix *Indexer) Remove(memory *types.Memory) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(memory.ID, ix.docTokens[memory.ID])
}

func (ix *Indexer) removeLocked(id string, tokens []string) {
	for _, set := range ix.byType {
		delete(set, id)
	}
	for _, set := range ix.byTag {
		delete(set, id)
	}
	for _, tok := range tokens {
		if set, ok := ix.byKeyword[tok]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(ix.byKeyword, tok)
			}
		}
	}
	delete(ix.bySemantic, id)
	delete(ix.docTokens, id)
}

// ReindexAll discards all current state and rebuilds from scratch over
// memories. It is the recovery path after an IndexError and the init-time
// path that rebuilds from storage.
func (ix *Indexer) ReindexAll(memories []*types.Memory) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.byType = make(map[types.MemoryType]map[string]struct{})
	ix.byTag = make(map[string]map[string]struct{})
	ix.byKeyword = make(map[string]map[string]struct{})
	ix.bySemantic = make(map[string][]float32)
	ix.docTokens = make(map[string][]string)
	for _, m := range memories {
		ix.insertLocked(m)
	}
}

// ByType returns a snapshot copy of the ids indexed under t.
func (ix *Indexer) ByType(t types.MemoryType) map[string]struct{} {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return copySet(ix.byType[t])
}

// ByTag returns a snapshot copy of the ids indexed under tag.
func (ix *Indexer) ByTag(tag string) map[string]struct{} {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return copySet(ix.byTag[tag])
}

// Embedding returns the stored embedding for id, or (nil, false) if absent.
func (ix *Indexer) Embedding(id string) ([]float32, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	v, ok := ix.bySemantic[id]
	return v, ok
}

// Sizes reports the cardinality of each index, used by stats().
func (ix *Indexer) Sizes() map[string]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return map[string]int{
		"by_type":     len(ix.byType),
		"by_tag":      len(ix.byTag),
		"by_keyword":  len(ix.byKeyword),
		"by_semantic": len(ix.bySemantic),
	}
}

// TagCounts reports, for every tag currently indexed, how many memories
// carry it.
func (ix *Indexer) TagCounts() map[string]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[string]int, len(ix.byTag))
	for tag, set := range ix.byTag {
		out[tag] = len(set)
	}
	return out
}

func addTo[K comparable](m map[K]map[string]struct{}, key K, id string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

func copySet(src map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(src))
	for k := range src {
		out[k] = struct{}{}
	}
	return out
}

// tokenize lowercases and splits on non-letter/digit boundaries, dropping
// tokens shorter than minTokenLength and capping the total at
// maxTokensPerDoc to keep a single pathological document from dominating
// the keyword index.
func tokenize(content string) []string {
	fields := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < minTokenLength {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
		if len(out) >= maxTokensPerDoc {
			break
		}
	}
	return out
}
