// Package memory provides in-memory implementations for testing.
package memory

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ngAnzar/rpc/ports"
)

// FS is an in-memory file tree implementing ports.SourceReader and
// ports.OutputWriter.
type FS struct {
	mu    sync.RWMutex
	files map[string][]byte
	reads map[string]int
}

// NewFS creates a file tree from path -> content pairs.
func NewFS(files map[string]string) *FS {
	m := &FS{
		files: make(map[string][]byte, len(files)),
		reads: make(map[string]int),
	}
	for path, content := range files {
		m.files[filepath.Clean(path)] = []byte(content)
	}
	return m
}

// ReadFile returns a copy of the stored content.
func (m *FS) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}
	m.reads[path]++
	return append([]byte(nil), data...), nil
}

// WriteFile stores data under path.
func (m *FS) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[filepath.Clean(path)] = append([]byte(nil), data...)
	return nil
}

// Exists reports whether path is stored.
func (m *FS) Exists(path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.files[filepath.Clean(path)]
	return ok, nil
}

// Remove deletes path.
func (m *FS) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, filepath.Clean(path))
}

// File returns stored content.
func (m *FS) File(path string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[filepath.Clean(path)]
	return string(data), ok
}

// Reads returns how many times path was read.
func (m *FS) Reads(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads[filepath.Clean(path)]
}

// Paths returns every stored path, sorted.
func (m *FS) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

var (
	_ ports.SourceReader = (*FS)(nil)
	_ ports.OutputWriter = (*FS)(nil)
)
