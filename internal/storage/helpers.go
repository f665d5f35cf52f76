package storage

import (
	"sort"
	"time"

	"github.com/vaultmind/memcore/pkg/types"
)

// ApplyPatch mutates mem in place according to patch. id, tenant_id and
// created_at are never touched; updated_at is always stamped to now.
func ApplyPatch(mem *types.Memory, patch *types.Patch) {
	if patch.Type != nil {
		mem.Type = *patch.Type
	}
	if patch.Content != nil {
		mem.Content = *patch.Content
	}
	if patch.Embedding != nil {
		mem.Embedding = patch.Embedding
	}
	if patch.Confidence != nil {
		mem.Confidence = *patch.Confidence
	}
	if patch.Importance != nil {
		mem.Importance = clampImportance(*patch.Importance)
	}
	if patch.EmotionalWeight != nil {
		mem.EmotionalWeight = *patch.EmotionalWeight
	}
	if patch.Tags != nil {
		mem.Tags = dedupeTags(patch.Tags)
	}
	if patch.Context != nil {
		mem.Context = patch.Context
	}
	if patch.TTL != nil {
		mem.TTL = *patch.TTL
	}
	mem.UpdatedAt = time.Now().UTC()
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

func dedupeTags(tags []string) []string {
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

// Matches reports whether mem satisfies every set field of filters. It is
// the in-memory reference implementation of list filtering shared by
// backends that cannot push the predicate down to a query engine.
func Matches(mem *types.Memory, filters Filters) bool {
	if filters.TenantID != "" && mem.TenantID != filters.TenantID {
		return false
	}
	if filters.AgentID != "" && mem.AgentID != filters.AgentID {
		return false
	}
	if filters.Type != "" && mem.Type != filters.Type {
		return false
	}
	if len(filters.Tags) > 0 && !hasAllTags(mem.Tags, filters.Tags) {
		return false
	}
	if filters.MinImportance != nil && mem.Importance < *filters.MinImportance {
		return false
	}
	if filters.MaxImportance != nil && mem.Importance > *filters.MaxImportance {
		return false
	}
	if filters.StartDate != nil && mem.CreatedAt.Before(*filters.StartDate) {
		return false
	}
	if filters.EndDate != nil && mem.CreatedAt.After(*filters.EndDate) {
		return false
	}
	return true
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// SortMemories orders memories in place by the requested field descending,
// breaking ties by (updated_at desc, id asc) to match the engine's
// deterministic ordering guarantee.
func SortMemories(memories []*types.Memory, by types.SortField) {
	key := func(m *types.Memory) time.Time {
		switch by {
		case types.SortByCreated:
			return m.CreatedAt
		case types.SortByAccessed:
			return m.LastAccessedAt
		case types.SortByImportance:
			return m.CreatedAt // importance isn't a time; handled below
		default:
			return m.UpdatedAt
		}
	}

	sort.SliceStable(memories, func(i, j int) bool {
		if by == types.SortByImportance {
			if memories[i].Importance != memories[j].Importance {
				return memories[i].Importance > memories[j].Importance
			}
		} else if !key(memories[i]).Equal(key(memories[j])) {
			return key(memories[i]).After(key(memories[j]))
		}
		if !memories[i].UpdatedAt.Equal(memories[j].UpdatedAt) {
			return memories[i].UpdatedAt.After(memories[j].UpdatedAt)
		}
		return memories[i].ID < memories[j].ID
	})
}

// Paginate slices memories by offset/limit. limit <= 0 means "no limit".
func Paginate(memories []*types.Memory, offset, limit int) []*types.Memory {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(memories) {
		return nil
	}
	memories = memories[offset:]
	if limit > 0 && limit < len(memories) {
		memories = memories[:limit]
	}
	return memories
}
