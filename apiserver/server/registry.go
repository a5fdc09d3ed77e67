package server

import (
	"github.com/jeremyandrews/addrindex/query"
)

// Registry holds one Query Engine per configured coin type — the boundary
// that replaces the original's mutable db_connection/requests globals
// (§9's "process-wide state" redesign note).
type Registry struct {
	Engines map[string]*query.Engine
	Symbols map[string]string
}

// NewRegistry returns an empty Registry ready to have coins added.
func NewRegistry() *Registry {
	return &Registry{Engines: map[string]*query.Engine{}, Symbols: map[string]string{}}
}

// Add registers a coin type's engine and ticker symbol.
func (r *Registry) Add(coinType, symbol string, engine *query.Engine) {
	r.Engines[coinType] = engine
	r.Symbols[coinType] = symbol
}

// CoinTypes returns every registered coin type name.
func (r *Registry) CoinTypes() []string {
	names := make([]string, 0, len(r.Engines))
	for name := range r.Engines {
		names = append(names, name)
	}
	return names
}

// Engine looks up a coin type's engine.
func (r *Registry) Engine(coinType string) (*query.Engine, bool) {
	e, ok := r.Engines[coinType]
	return e, ok
}
