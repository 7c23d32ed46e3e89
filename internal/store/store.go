package store

import (
	"errors"

	"stage-command-center/internal/show"
)

// ErrNotFound is returned when a collection has never been saved.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface. It satisfies show.Persister.
type Store interface {
	SavePresets(presets []show.Preset) error
	LoadPresets() ([]show.Preset, error)

	SaveCues(cues []show.LightingCue) error
	LoadCues() ([]show.LightingCue, error)

	SaveScript(items []show.ScriptItem) error
	LoadScript() ([]show.ScriptItem, error)

	SaveThemes(themes []show.VisualizerTheme) error
	LoadThemes() ([]show.VisualizerTheme, error)

	// Close the store
	Close() error
}

// Restore overlays every saved collection onto seed. Collections that were
// never saved keep their seed value.
func Restore(st Store, seed *show.Seed) error {
	presets, err := st.LoadPresets()
	switch {
	case err == nil:
		seed.Presets = presets
	case !errors.Is(err, ErrNotFound):
		return err
	}

	cues, err := st.LoadCues()
	switch {
	case err == nil:
		seed.Cues = cues
	case !errors.Is(err, ErrNotFound):
		return err
	}

	themes, err := st.LoadThemes()
	switch {
	case err == nil:
		seed.Themes = themes
	case !errors.Is(err, ErrNotFound):
		return err
	}

	script, err := st.LoadScript()
	switch {
	case err == nil:
		seed.Script = script
	case !errors.Is(err, ErrNotFound):
		return err
	}
	return nil
}
