package memory

import (
	"context"
	"sync"

	"github.com/ngAnzar/rpc/ports"
)

// BuildCache is an in-memory implementation of ports.BuildCache.
type BuildCache struct {
	mu      sync.RWMutex
	digests map[string]string
	runs    []ports.Run
}

// NewBuildCache creates an empty cache.
func NewBuildCache() *BuildCache {
	return &BuildCache{digests: make(map[string]string)}
}

func (c *BuildCache) Digest(ctx context.Context, path string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.digests[path]
	return d, ok, nil
}

func (c *BuildCache) Record(ctx context.Context, runID, path, digest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.digests[path] = digest
	return nil
}

func (c *BuildCache) BeginRun(ctx context.Context, run ports.Run) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runs = append(c.runs, run)
	return nil
}

func (c *BuildCache) FinishRun(ctx context.Context, run ports.Run) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.runs {
		if c.runs[i].ID == run.ID {
			c.runs[i] = run
			return nil
		}
	}
	c.runs = append(c.runs, run)
	return nil
}

func (c *BuildCache) Runs(ctx context.Context, limit int) ([]ports.Run, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []ports.Run
	for i := len(c.runs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, c.runs[i])
	}
	return out, nil
}

var _ ports.BuildCache = (*BuildCache)(nil)
