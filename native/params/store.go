package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Pauses maps module names to their pause toggle.
type Pauses map[string]bool

// Modules returns the paused module names in sorted order.
func (p Pauses) Modules() []string {
	out := make([]string, 0, len(p))
	for module, paused := range p {
		if paused {
			out = append(out, module)
		}
	}
	sort.Strings(out)
	return out
}

// Store provides typed accessors for admin-controlled parameters.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// SetPauses persists the supplied pause configuration under the canonical
// parameter store key. Values are marshalled as JSON.
func (s *Store) SetPauses(pauses Pauses) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if pauses == nil {
		pauses = Pauses{}
	}
	encoded, err := json.Marshal(pauses)
	if err != nil {
		return fmt.Errorf("params: encode pauses: %w", err)
	}
	return state.ParamStoreSet(ParamsKeyPauses, encoded)
}

// Pauses loads the persisted pause configuration. When unset, an empty
// configuration is returned.
func (s *Store) Pauses() (Pauses, error) {
	state, err := s.withState()
	if err != nil {
		return Pauses{}, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyPauses)
	if err != nil {
		return Pauses{}, fmt.Errorf("params: load pauses: %w", err)
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return Pauses{}, nil
	}
	var pauses Pauses
	if err := json.Unmarshal(raw, &pauses); err != nil {
		return Pauses{}, fmt.Errorf("params: decode pauses: %w", err)
	}
	if pauses == nil {
		pauses = Pauses{}
	}
	return pauses, nil
}

// SetPaused flips the toggle for a single module.
func (s *Store) SetPaused(module string, paused bool) error {
	module = normalizeModule(module)
	if module == "" {
		return fmt.Errorf("params: module required")
	}
	pauses, err := s.Pauses()
	if err != nil {
		return err
	}
	if paused {
		pauses[module] = true
	} else {
		delete(pauses, module)
	}
	return s.SetPauses(pauses)
}

// IsPaused reports whether the module is paused. Read failures are treated as
// paused so a corrupt parameter never silently re-enables mutations.
func (s *Store) IsPaused(module string) bool {
	pauses, err := s.Pauses()
	if err != nil {
		return true
	}
	return pauses[normalizeModule(module)]
}

func normalizeModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
