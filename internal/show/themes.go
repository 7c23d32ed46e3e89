package show

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var hexColorRe = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

var themeKeySpaceRe = regexp.MustCompile(`\s+`)

// ThemeKey derives the identifying key of a theme name: lower case, runs of
// whitespace replaced by a dash.
func ThemeKey(name string) string {
	return themeKeySpaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// normalizeTheme trims the name, derives the key and checks every color.
func normalizeTheme(t VisualizerTheme) (VisualizerTheme, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return VisualizerTheme{}, fmt.Errorf("theme name cannot be empty: %w", ErrValidation)
	}
	t.Key = ThemeKey(t.Name)
	colors := []struct {
		field string
		value *string
	}{
		{"base", &t.Base},
		{"highlight", &t.Highlight},
		{"shadow", &t.Shadow},
		{"idle_base", &t.IdleBase},
		{"idle_highlight", &t.IdleHighlight},
	}
	for _, c := range colors {
		*c.value = strings.TrimSpace(*c.value)
		if !hexColorRe.MatchString(*c.value) {
			return VisualizerTheme{}, fmt.Errorf("theme %q: %s %q is not a hex color: %w", t.Name, c.field, *c.value, ErrValidation)
		}
	}
	return t, nil
}

// ThemeStore holds visualizer themes in insertion order, unique by key, plus
// the key of the active theme.
type ThemeStore struct {
	themes []VisualizerTheme
	active string
}

// NewThemeStore creates a store from seed themes. Invalid entries are
// skipped; the first theme becomes active.
func NewThemeStore(seed []VisualizerTheme) *ThemeStore {
	ts := &ThemeStore{}
	for _, t := range seed {
		if t, err := normalizeTheme(t); err == nil {
			ts.Put(t)
		}
	}
	if len(ts.themes) > 0 {
		ts.active = ts.themes[0].Key
	}
	return ts
}

func (ts *ThemeStore) indexOf(key string) int {
	return slices.IndexFunc(ts.themes, func(t VisualizerTheme) bool { return t.Key == key })
}

// Put stores t, replacing any theme with the same key in place.
func (ts *ThemeStore) Put(t VisualizerTheme) (replaced bool) {
	if i := ts.indexOf(t.Key); i >= 0 {
		ts.themes[i] = t
		return true
	}
	ts.themes = append(ts.themes, t)
	return false
}

// Get returns the theme with key.
func (ts *ThemeStore) Get(key string) (VisualizerTheme, bool) {
	i := ts.indexOf(key)
	if i < 0 {
		return VisualizerTheme{}, false
	}
	return ts.themes[i], true
}

// Select makes key the active theme. Returns false if it does not exist.
func (ts *ThemeStore) Select(key string) bool {
	if ts.indexOf(key) < 0 {
		return false
	}
	ts.active = key
	return true
}

// Active returns the key of the active theme, or "" when there are none.
func (ts *ThemeStore) Active() string {
	return ts.active
}

// List returns all themes in insertion order.
func (ts *ThemeStore) List() []VisualizerTheme {
	return slices.Clone(ts.themes)
}
