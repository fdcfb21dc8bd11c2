package match

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

// RecordStore persists game records.
type RecordStore interface {
	// Write stores data at path. The parent directory must already exist.
	Write(ctx context.Context, path string, data []byte) error
	// MakeDir creates dir and any missing parents.
	MakeDir(ctx context.Context, dir string) error
}

// AFSStore writes records through an afs.Service, so record locations may
// be local paths or any URL scheme afs supports.
type AFSStore struct {
	fs afs.Service
}

// NewAFSStore returns a store backed by afs.New().
func NewAFSStore() *AFSStore {
	return &AFSStore{fs: afs.New()}
}

// Write implements RecordStore.
func (s *AFSStore) Write(ctx context.Context, p string, data []byte) error {
	dir := path.Dir(p)
	exists, err := s.fs.Exists(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to check directory %s: %w", dir, err)
	}
	if !exists {
		return fmt.Errorf("directory %s does not exist", dir)
	}
	if err := s.fs.Upload(ctx, p, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// MakeDir implements RecordStore.
func (s *AFSStore) MakeDir(ctx context.Context, dir string) error {
	exists, err := s.fs.Exists(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to check directory %s: %w", dir, err)
	}
	if exists {
		return nil
	}
	if err := s.fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// MemStore keeps records in memory. Directories must be created with
// MakeDir before records are written into them, unless Lenient is set.
type MemStore struct {
	mu      sync.Mutex
	Lenient bool
	files   map[string][]byte
	dirs    map[string]bool
	made    []string
}

// NewMemStore returns an empty lenient store.
func NewMemStore() *MemStore {
	return &MemStore{Lenient: true, files: map[string][]byte{}, dirs: map[string]bool{}}
}

// Write implements RecordStore.
func (s *MemStore) Write(_ context.Context, p string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Lenient && !s.dirs[path.Dir(p)] {
		return fmt.Errorf("directory %s does not exist", path.Dir(p))
	}
	s.files[p] = append([]byte(nil), data...)
	return nil
}

// MakeDir implements RecordStore.
func (s *MemStore) MakeDir(_ context.Context, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for d := dir; d != "/" && d != "." && !s.dirs[d]; d = path.Dir(d) {
		s.dirs[d] = true
	}
	s.made = append(s.made, dir)
	return nil
}

// File returns the data written at p.
func (s *MemStore) File(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[p]
	return data, ok
}

// Paths lists every written path in sorted order.
func (s *MemStore) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// MadeDirs lists the MakeDir calls in order.
func (s *MemStore) MadeDirs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.made...)
}

// Under lists written paths inside dir.
func (s *MemStore) Under(dir string) []string {
	var out []string
	for _, p := range s.Paths() {
		if strings.HasPrefix(p, strings.TrimSuffix(dir, "/")+"/") {
			out = append(out, p)
		}
	}
	return out
}
