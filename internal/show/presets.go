package show

import (
	"fmt"
	"strings"
)

// PresetStore holds named, ordered snapshots. Names are unique
// case-insensitively and act as the primary key.
type PresetStore struct {
	presets []Preset
}

// NewPresetStore creates a store from seed presets. Seeds with a blank or
// colliding name are dropped.
func NewPresetStore(seed []Preset) *PresetStore {
	ps := &PresetStore{}
	for _, p := range seed {
		name := strings.TrimSpace(p.Name)
		if name == "" || ps.indexOf(name) >= 0 {
			continue
		}
		ps.presets = append(ps.presets, Preset{Name: name, Settings: cloneSettings(p.Settings)})
	}
	return ps
}

func (ps *PresetStore) indexOf(name string) int {
	for i, p := range ps.presets {
		if strings.EqualFold(p.Name, name) {
			return i
		}
	}
	return -1
}

// List returns copies of all presets in display order.
func (ps *PresetStore) List() []Preset {
	out := make([]Preset, len(ps.presets))
	for i, p := range ps.presets {
		out[i] = clonePreset(p)
	}
	return out
}

// Get looks a preset up by name, ignoring case.
func (ps *PresetStore) Get(name string) (Preset, bool) {
	i := ps.indexOf(strings.TrimSpace(name))
	if i < 0 {
		return Preset{}, false
	}
	return clonePreset(ps.presets[i]), true
}

// Save appends a new preset capturing current. The name is trimmed; a blank
// name fails with ErrValidation and a taken name with ErrConflict. Nothing is
// mutated on failure.
func (ps *PresetStore) Save(name string, current Settings) (Preset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Preset{}, fmt.Errorf("preset name cannot be empty: %w", ErrValidation)
	}
	if ps.indexOf(name) >= 0 {
		return Preset{}, fmt.Errorf("a preset named %q already exists: %w", name, ErrConflict)
	}
	p := Preset{Name: name, Settings: cloneSettings(current)}
	ps.presets = append(ps.presets, p)
	return clonePreset(p), nil
}

// Update overwrites the settings of an existing preset with current.
// Returns false if no preset has that name.
func (ps *PresetStore) Update(name string, current Settings) bool {
	i := ps.indexOf(strings.TrimSpace(name))
	if i < 0 {
		return false
	}
	ps.presets[i].Settings = cloneSettings(current)
	return true
}

// Delete removes a preset by name. Returns false if absent.
func (ps *PresetStore) Delete(name string) bool {
	i := ps.indexOf(strings.TrimSpace(name))
	if i < 0 {
		return false
	}
	ps.presets = append(ps.presets[:i], ps.presets[i+1:]...)
	return true
}

// Reorder replaces the display order. names must be a permutation of the
// existing preset names (compared ignoring case); anything else fails with
// ErrValidation and leaves the order unchanged.
func (ps *PresetStore) Reorder(names []string) error {
	if len(names) != len(ps.presets) {
		return fmt.Errorf("reorder: got %d names for %d presets: %w", len(names), len(ps.presets), ErrValidation)
	}
	seen := make(map[int]bool, len(names))
	next := make([]Preset, 0, len(names))
	for _, n := range names {
		i := ps.indexOf(strings.TrimSpace(n))
		if i < 0 {
			return fmt.Errorf("reorder: unknown preset %q: %w", n, ErrValidation)
		}
		if seen[i] {
			return fmt.Errorf("reorder: duplicate preset %q: %w", n, ErrValidation)
		}
		seen[i] = true
		next = append(next, ps.presets[i])
	}
	ps.presets = next
	return nil
}
