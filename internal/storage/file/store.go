// Package file implements the storage.Store contract as one directory per
// tenant holding one JSON file per memory, keyed by id. Writes go through a
// temp-file-plus-rename so a crash mid-write never leaves a torn file.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vaultmind/memcore/internal/storage"
	"github.com/vaultmind/memcore/pkg/types"
)

// Store is a crash-safe, file-per-memory adapter rooted at a directory.
// It is not transactional across memories; BulkStore emulates atomicity by
// writing to a staging subdirectory and renaming each file into place only
// once every member of the batch has been written successfully.
type Store struct {
	root string
	mu   sync.Mutex // serializes directory-structure changes (mkdir, rename, clear)
}

// New returns a Store rooted at root. The directory is created on Initialize.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Initialize(_ context.Context) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return types.NewStorageError(false, err, "file store: creating root %s", s.root)
	}
	return nil
}

func (s *Store) tenantDir(tenantID string) string {
	return filepath.Join(s.root, sanitize(tenantID))
}

func (s *Store) path(tenantID, id string) string {
	return filepath.Join(s.tenantDir(tenantID), sanitize(id)+".json")
}

// sanitize strips path separators so tenant/memory ids can never escape
// their directory via "..", "/" or the like.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "..", "_")
	return s
}

func (s *Store) StoreMemory(_ context.Context, memory *types.Memory) error {
	return s.writeMemory(memory)
}

func (s *Store) writeMemory(memory *types.Memory) error {
	dir := s.tenantDir(memory.TenantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.NewStorageError(false, err, "file store: creating tenant dir for %s", memory.TenantID)
	}

	data, err := json.MarshalIndent(memory, "", "  ")
	if err != nil {
		return types.NewStorageError(false, err, "file store: marshaling memory %s", memory.ID)
	}

	target := s.path(memory.TenantID, memory.ID)
	return atomicWrite(target, data)
}

func atomicWrite(target string, data []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return types.NewStorageError(true, err, "file store: creating temp file in %s", dir)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return types.NewStorageError(true, err, "file store: writing temp file %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return types.NewStorageError(true, err, "file store: closing temp file %s", tmpPath)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return types.NewStorageError(true, err, "file store: renaming %s into place", target)
	}
	return nil
}

func (s *Store) Retrieve(_ context.Context, id string) (*types.Memory, error) {
	mem, _, err := s.findByID(id)
	if err != nil {
		return nil, err
	}
	return mem, nil
}

// findByID scans tenant directories for id since the file layout is keyed
// by (tenant, id) but callers address memories by id alone.
func (s *Store) findByID(id string) (*types.Memory, string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", types.NewNotFoundError(id)
		}
		return nil, "", types.NewStorageError(true, err, "file store: reading root %s", s.root)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(s.root, e.Name(), sanitize(id)+".json")
		data, err := os.ReadFile(candidate)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, "", types.NewStorageError(true, err, "file store: reading %s", candidate)
		}
		var mem types.Memory
		if err := json.Unmarshal(data, &mem); err != nil {
			return nil, "", types.NewStorageError(false, err, "file store: corrupt record at %s", candidate)
		}
		return &mem, candidate, nil
	}
	return nil, "", types.NewNotFoundError(id)
}

func (s *Store) UpdateMemory(_ context.Context, id string, patch *types.Patch) (*types.Memory, error) {
	mem, _, err := s.findByID(id)
	if err != nil {
		return nil, err
	}
	storage.ApplyPatch(mem, patch)
	if err := s.writeMemory(mem); err != nil {
		return nil, err
	}
	return mem, nil
}

func (s *Store) DeleteMemory(_ context.Context, id string) error {
	_, path, err := s.findByID(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return types.NewStorageError(true, err, "file store: deleting %s", path)
	}
	return nil
}

func (s *Store) List(_ context.Context, filters storage.Filters) ([]*types.Memory, error) {
	var out []*types.Memory

	tenants := []string{filters.TenantID}
	if filters.TenantID == "" {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, types.NewStorageError(true, err, "file store: reading root %s", s.root)
		}
		tenants = tenants[:0]
		for _, e := range entries {
			if e.IsDir() {
				tenants = append(tenants, e.Name())
			}
		}
	}

	for _, rawTenant := range tenants {
		dir := filepath.Join(s.root, sanitize(rawTenant))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, types.NewStorageError(true, err, "file store: reading tenant dir %s", dir)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				continue // concurrent delete; List tolerates misses
			}
			var mem types.Memory
			if err := json.Unmarshal(data, &mem); err != nil {
				continue // corrupt record: skip rather than return a torn one
			}
			if storage.Matches(&mem, filters) {
				out = append(out, &mem)
			}
		}
	}

	storage.SortMemories(out, filters.SortBy)
	return storage.Paginate(out, filters.Offset, filters.Limit), nil
}

func (s *Store) Count(ctx context.Context, filters storage.Filters) (int, error) {
	unpaged := filters
	unpaged.Limit = 0
	unpaged.Offset = 0
	results, err := s.List(ctx, unpaged)
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

func (s *Store) Clear(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tenantID == "" {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return types.NewStorageError(true, err, "file store: reading root %s", s.root)
		}
		for _, e := range entries {
			if e.IsDir() {
				if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
					return types.NewStorageError(true, err, "file store: clearing %s", e.Name())
				}
			}
		}
		return nil
	}

	dir := s.tenantDir(tenantID)
	if err := os.RemoveAll(dir); err != nil {
		return types.NewStorageError(true, err, "file store: clearing tenant dir %s", dir)
	}
	return nil
}

// BulkStore writes every memory into a staging subdirectory first; only
// once all writes succeed are the files renamed into their tenant
// directories, so a mid-batch failure leaves existing state untouched.
func (s *Store) BulkStore(_ context.Context, memories []*types.Memory) error {
	if len(memories) == 0 {
		return nil
	}

	staging, err := os.MkdirTemp(s.root, ".bulk-*")
	if err != nil {
		return types.NewStorageError(true, err, "file store: creating bulk staging dir")
	}
	defer os.RemoveAll(staging)

	type placed struct {
		staged string
		final  string
	}
	var placements []placed

	for _, mem := range memories {
		data, err := json.MarshalIndent(mem, "", "  ")
		if err != nil {
			return types.NewStorageError(false, err, "file store: marshaling memory %s", mem.ID)
		}
		stagedPath := filepath.Join(staging, sanitize(mem.ID)+".json")
		if err := os.WriteFile(stagedPath, data, 0o644); err != nil {
			return types.NewStorageError(true, err, "file store: staging memory %s", mem.ID)
		}
		placements = append(placements, placed{staged: stagedPath, final: s.path(mem.TenantID, mem.ID)})
	}

	for _, p := range placements {
		if err := os.MkdirAll(filepath.Dir(p.final), 0o755); err != nil {
			return types.NewStorageError(true, err, "file store: preparing tenant dir for %s", p.final)
		}
		if err := os.Rename(p.staged, p.final); err != nil {
			return types.NewStorageError(true, err, "file store: placing %s", p.final)
		}
	}
	return nil
}

func (s *Store) Health(_ context.Context) storage.HealthReport {
	if _, err := os.Stat(s.root); err != nil {
		return storage.HealthReport{Status: types.HealthUnhealthy, Details: fmt.Sprintf("root unavailable: %v", err)}
	}
	return storage.HealthReport{Status: types.HealthHealthy, Details: "ok"}
}

func (s *Store) Close() error { return nil }
