package tool

import "fmt"

// Backend is the store surface the full catalog is built on.
type Backend interface {
	TaskStore
	AccountStore
}

// NewCatalog registers every tool the adapters can draw from.
func NewCatalog(b Backend, opts ...Option) (*Registry, error) {
	r := NewRegistry(opts...)
	groups := [][]Definition{
		TaskTools(b),
		AccountTools(b),
		WritingTools(),
	}
	for _, defs := range groups {
		for _, def := range defs {
			if err := r.Register(def); err != nil {
				return nil, fmt.Errorf("build catalog: %w", err)
			}
		}
	}
	return r, nil
}
