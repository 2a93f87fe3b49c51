package catalog

import (
	"context"
	"os"
	"sync"

	dErrors "govengine/pkg/domain-errors"
)

// Loader reads the catalog from disk once and serves the cached result.
type Loader struct {
	path     string
	readFile func(string) ([]byte, error)

	mu     sync.Mutex
	cached *Catalog
}

func NewLoader(path string) *Loader {
	return &Loader{path: path, readFile: os.ReadFile}
}

// Load returns the cached catalog, reading and validating the document on
// first use or after Invalidate. A failed load leaves the cache empty.
func (l *Loader) Load(ctx context.Context) (*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "catalog load cancelled")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cached != nil {
		return l.cached, nil
	}

	data, err := l.readFile(l.path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read process catalog")
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	l.cached = c
	return c, nil
}

// Invalidate drops the cache so the next Load rereads the document.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cached = nil
	l.mu.Unlock()
}
