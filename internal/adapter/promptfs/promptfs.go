// Package promptfs resolves role prompt references to instruction text from
// files on disk, with an in-process cache in front of the filesystem.
package promptfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/councild/councild/internal/domain"
)

// Source resolves prompt references relative to a base directory. A
// reference is a plain file name like "architect.txt"; path traversal
// outside the directory is rejected.
type Source struct {
	dir   string
	cache *ristretto.Cache[string, string]
}

// New creates a prompt source rooted at dir. cacheSizeMB bounds the cache's
// memory budget; values below 1 fall back to 1 MB.
func New(dir string, cacheSizeMB int64) (*Source, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: prompts.dir not set", domain.ErrConfiguration)
	}
	if cacheSizeMB < 1 {
		cacheSizeMB = 1
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 1 << 12,
		MaxCost:     cacheSizeMB << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("prompt cache: %w", err)
	}

	return &Source{dir: dir, cache: cache}, nil
}

// ResolvePrompt returns the instruction text for a prompt reference.
func (s *Source) ResolvePrompt(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty prompt reference", domain.ErrConfiguration)
	}
	if ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return "", fmt.Errorf("%w: invalid prompt reference %q", domain.ErrConfiguration, ref)
	}

	if text, ok := s.cache.Get(ref); ok {
		return text, nil
	}

	data, err := os.ReadFile(filepath.Join(s.dir, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: prompt %q", domain.ErrNotFound, ref)
		}
		return "", fmt.Errorf("read prompt %q: %w", ref, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("%w: prompt %q is empty", domain.ErrConfiguration, ref)
	}

	s.cache.Set(ref, text, int64(len(text)))
	return text, nil
}

// Close releases the cache.
func (s *Source) Close() {
	s.cache.Close()
}
