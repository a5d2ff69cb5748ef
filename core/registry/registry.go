// Package registry loads schema documents and resolves the references
// between them. It is the only place documents are constructed, so every
// file maps to exactly one *schema.Document for the lifetime of a registry.
package registry

import (
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-openapi/jsonpointer"
	"github.com/ngAnzar/rpc/adapters/fsio"
	"github.com/ngAnzar/rpc/core/schema"
	"github.com/ngAnzar/rpc/ports"
	"github.com/rs/zerolog"
)

// Registry caches documents by normalized absolute path.
type Registry struct {
	mu   sync.RWMutex
	docs map[string]*schema.Document

	reader    ports.SourceReader
	validator *schema.Validator
	logger    zerolog.Logger
	loads     atomic.Int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithReader replaces the filesystem reader.
func WithReader(r ports.SourceReader) Option {
	return func(reg *Registry) { reg.reader = r }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(reg *Registry) { reg.logger = l }
}

// WithValidator shares an already compiled validator.
func WithValidator(v *schema.Validator) Option {
	return func(reg *Registry) { reg.validator = v }
}

// New creates an empty registry. Each compile run should use its own.
func New(opts ...Option) (*Registry, error) {
	r := &Registry{
		docs:   make(map[string]*schema.Document),
		reader: fsio.OS{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.validator == nil {
		v, err := schema.NewValidator()
		if err != nil {
			return nil, err
		}
		r.validator = v
	}
	return r, nil
}

// Get returns the document stored at path, loading it on first use.
func (r *Registry) Get(path string) (*schema.Document, error) {
	abs, err := Normalize(path)
	if err != nil {
		return nil, err
	}
	if doc, ok := r.lookup(abs); ok {
		return doc, nil
	}
	return r.load(abs)
}

// Documents returns every loaded document sorted by path.
func (r *Registry) Documents() []*schema.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.docs))
	for p := range r.docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	docs := make([]*schema.Document, len(paths))
	for i, p := range paths {
		docs[i] = r.docs[p]
	}
	return docs
}

// Loads returns how many files were read and validated.
func (r *Registry) Loads() int {
	return int(r.loads.Load())
}

func (r *Registry) lookup(path string) (*schema.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[path]
	return doc, ok
}

// load reads, validates and builds the document, caches it, and only then
// resolves its types so that documents referencing each other terminate.
func (r *Registry) load(path string) (*schema.Document, error) {
	data, err := r.reader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	r.loads.Add(1)

	raw, err := schema.Parse(path, data)
	if err != nil {
		return nil, err
	}
	if err := r.validator.Validate(path, raw); err != nil {
		return nil, err
	}
	doc, err := schema.NewDocument(path, raw)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", path, err)
	}

	r.mu.Lock()
	if existing, ok := r.docs[path]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.docs[path] = doc
	r.mu.Unlock()

	r.logger.Debug().
		Str("path", path).
		Str("module", doc.Module.Parent).
		Int("entities", len(doc.Entities)).
		Int("methods", len(doc.Methods)).
		Msg("document loaded")

	if err := doc.ResolveTypes(r); err != nil {
		r.mu.Lock()
		delete(r.docs, path)
		r.mu.Unlock()
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	return doc, nil
}

// Resolve implements schema.Resolver.
func (r *Registry) Resolve(ref *schema.Reference) (any, error) {
	return r.resolve(ref, map[*schema.Reference]bool{})
}

func (r *Registry) resolve(ref *schema.Reference, visiting map[*schema.Reference]bool) (any, error) {
	docPath, pointer, err := Split(ref.Ref, ref.DocPath)
	if err != nil {
		return nil, err
	}

	doc, ok := r.lookup(docPath)
	if !ok {
		if doc, err = r.Get(docPath); err != nil {
			return nil, err
		}
	}

	p, err := jsonpointer.New(pointer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref.Ref, err)
	}
	target, _, err := p.Get(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: dangling reference: %w", ref.Ref, err)
	}

	switch t := target.(type) {
	case *schema.Entity:
		return t, nil
	case *schema.Reference:
		visiting[ref] = true
		if visiting[t] {
			return nil, fmt.Errorf("%s: %w", ref.Ref, schema.ErrReferenceCycle)
		}
		if !t.Resolved() {
			inner, err := r.resolve(t, visiting)
			if err != nil {
				return nil, err
			}
			t.Bind(inner)
		}
		return t, nil
	case schema.Type:
		return t, nil
	}
	return nil, fmt.Errorf("%s: %w", ref.Ref, schema.ErrInvalidTarget)
}

// Split separates a reference into the normalized document path and the
// JSON pointer. An empty document part means the declaring document; a
// relative one is resolved against the declaring document's directory.
func Split(ref, declaredIn string) (docPath, pointer string, err error) {
	i := strings.Index(ref, "#")
	if i < 0 {
		return "", "", fmt.Errorf("%q: %w", ref, schema.ErrMissingHash)
	}
	loc, pointer := ref[:i], ref[i+1:]

	if u, perr := url.Parse(loc); perr == nil && u.Scheme != "" {
		if u.Host != "" {
			return "", "", fmt.Errorf("%q: %w", ref, schema.ErrRemoteReference)
		}
		if u.Scheme == "file" {
			loc = u.Path
		}
	}

	switch {
	case loc == "":
		docPath = declaredIn
	case filepath.IsAbs(loc):
		docPath = loc
	default:
		docPath = filepath.Join(filepath.Dir(declaredIn), loc)
	}
	docPath, err = Normalize(docPath)
	return docPath, pointer, err
}

// Normalize makes path absolute and clean.
func Normalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}
