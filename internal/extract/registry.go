package extract

import (
	"fmt"
	"sort"
	"sync"
)

// Parser is the capability interface for site-specific extractors. A Parser
// receives raw HTML plus the source URL and returns a field mapping.
type Parser interface {
	Parse(html, url string) (map[string]any, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(html, url string) (map[string]any, error)

// Parse implements Parser.
func (f ParserFunc) Parse(html, url string) (map[string]any, error) {
	return f(html, url)
}

// Registry is a static registry of named parsers. The zero value is ready
// to use and safe for concurrent access.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register binds name to p. Re-registering a name is an error so silently
// shadowed parsers can't hide a misconfiguration.
func (r *Registry) Register(name string, p Parser) error {
	if name == "" {
		return fmt.Errorf("parser name must not be empty")
	}
	if p == nil {
		return fmt.Errorf("parser %q must not be nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.parsers == nil {
		r.parsers = make(map[string]Parser)
	}
	if _, exists := r.parsers[name]; exists {
		return fmt.Errorf("parser %q already registered", name)
	}
	r.parsers[name] = p
	return nil
}

// Lookup returns the parser bound to name.
func (r *Registry) Lookup(name string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[name]
	return p, ok
}

// Names lists registered parser names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultParser extracts the generic field set (text, links, tables,
// metadata) from any page.
func DefaultParser() Parser {
	return ParserFunc(func(html, url string) (map[string]any, error) {
		doc, err := Parse(html)
		if err != nil {
			return nil, err
		}
		return doc.Fields(url), nil
	})
}
