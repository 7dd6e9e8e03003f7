package vars

import (
	"errors"
	"fmt"
	"sync"
)

// Scope names one of the three variable layers.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeScenario
	ScopeStep
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeScenario:
		return "scenario"
	case ScopeStep:
		return "step"
	default:
		return "unknown"
	}
}

// ParseScope maps a document scope name to a Scope. Empty means scenario.
func ParseScope(name string) (Scope, error) {
	switch name {
	case "", "scenario":
		return ScopeScenario, nil
	case "step":
		return ScopeStep, nil
	case "global":
		return ScopeGlobal, nil
	default:
		return 0, fmt.Errorf("invalid scope: %s", name)
	}
}

var (
	// ErrGlobalSealed is returned when writing to the global scope after Seal.
	ErrGlobalSealed = errors.New("global scope is read-only during a run")
	// ErrNoStepScope is returned when writing to the step scope with no step active.
	ErrNoStepScope = errors.New("no active step scope")
)

// Store is the layered variable context of a scenario run. Lookups consult
// the step layers from innermost outwards, then the scenario scope, then the
// global scope.
type Store struct {
	mu       sync.RWMutex
	global   map[string]any
	scenario map[string]any
	steps    []map[string]any
	sealed   bool

	// scenario keys written since Fork, replayed by Merge
	written map[string]struct{}
	forked  bool

	resolver *Resolver
}

func NewStore() *Store {
	s := &Store{
		global:   make(map[string]any),
		scenario: make(map[string]any),
	}
	s.resolver = newResolver(s)
	return s
}

// Set writes name into scope. Writing an existing name overwrites it.
func (s *Store) Set(scope Scope, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch scope {
	case ScopeGlobal:
		if s.sealed {
			return ErrGlobalSealed
		}
		s.global[name] = value
	case ScopeScenario:
		s.scenario[name] = value
		if s.forked {
			s.written[name] = struct{}{}
		}
	case ScopeStep:
		if len(s.steps) == 0 {
			return ErrNoStepScope
		}
		s.steps[len(s.steps)-1][name] = value
	default:
		return fmt.Errorf("invalid scope: %d", scope)
	}
	return nil
}

// SetAll writes every entry of values into scope.
func (s *Store) SetAll(scope Scope, values map[string]any) error {
	for k, v := range values {
		if err := s.Set(scope, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Seal makes the global scope read-only.
func (s *Store) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
}

// Get looks up name, first as an exact variable and then as a dotted path
// into a structured variable (user.address.city, items.0.id).
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.lookupLocked(name); ok {
		return v, true
	}

	root, rest := splitPath(name)
	if rest == "" {
		return nil, false
	}
	base, ok := s.lookupLocked(root)
	if !ok {
		return nil, false
	}
	return Walk(base, rest)
}

func (s *Store) lookupLocked(name string) (any, bool) {
	for i := len(s.steps) - 1; i >= 0; i-- {
		if v, ok := s.steps[i][name]; ok {
			return v, true
		}
	}
	if v, ok := s.scenario[name]; ok {
		return v, true
	}
	if v, ok := s.global[name]; ok {
		return v, true
	}
	return nil, false
}

// Has reports whether name resolves in any scope.
func (s *Store) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// EnterStepScope pushes a fresh step layer on top of the current ones.
func (s *Store) EnterStepScope() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, make(map[string]any))
}

// ExitStepScope discards the innermost step layer.
func (s *Store) ExitStepScope() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) > 0 {
		s.steps = s.steps[:len(s.steps)-1]
	}
}

// Depth returns the number of active step layers.
func (s *Store) Depth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.steps)
}

// Snapshot is a point-in-time copy of every scope.
type Snapshot struct {
	Global   map[string]any `json:"global"`
	Scenario map[string]any `json:"scenario"`
	Step     map[string]any `json:"step"`
}

// Snapshot copies all scopes. Step layers are flattened, innermost wins.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Global:   copyMap(s.global),
		Scenario: copyMap(s.scenario),
		Step:     s.flattenStepsLocked(),
	}
}

func (s *Store) flattenStepsLocked() map[string]any {
	out := make(map[string]any)
	for _, layer := range s.steps {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// Fork returns an isolated copy for a parallel worker. The copy has the
// scenario scope and a single step layer seeded from the current step layers.
// Scenario writes on the fork are tracked so Merge can replay them.
func (s *Store) Fork() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	child := &Store{
		global:   s.global,
		scenario: copyMap(s.scenario),
		steps:    []map[string]any{s.flattenStepsLocked()},
		sealed:   true,
		written:  make(map[string]struct{}),
		forked:   true,
	}
	child.resolver = newResolver(child)
	return child
}

// Merge applies the scenario-scope writes made on child back onto s.
func (s *Store) Merge(child *Store) {
	child.mu.RLock()
	updates := make(map[string]any, len(child.written))
	for k := range child.written {
		updates[k] = child.scenario[k]
	}
	child.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range updates {
		s.scenario[k] = v
		if s.forked {
			s.written[k] = struct{}{}
		}
	}
}

// ResolveTemplate substitutes every ${...} placeholder in text and always
// returns a string.
func (s *Store) ResolveTemplate(text string) (string, error) {
	return s.resolver.ResolveString(text)
}

// ResolveValue resolves placeholders in v, walking maps and slices. A string
// consisting of exactly one placeholder yields the referenced value with its
// native type; any other string is stringified.
func (s *Store) ResolveValue(v any) (any, error) {
	return s.resolver.ResolveValue(v)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
