package store

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"stage-command-center/internal/show"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadPresetsKeepsOrder(t *testing.T) {
	s := newTestStore(t)

	presets := []show.Preset{
		{Name: "Showtime", Settings: show.Settings{"light-01": true, "light-02": false}},
		{Name: "Pre-Show", Settings: show.Settings{"light-02": true}},
		{Name: "Blackout", Settings: show.Settings{}},
	}
	if err := s.SavePresets(presets); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadPresets()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, presets) {
		t.Errorf("got %+v, want %+v", got, presets)
	}
}

func TestSaveReplacesList(t *testing.T) {
	s := newTestStore(t)

	s.SaveCues([]show.LightingCue{{Name: "A"}, {Name: "B"}, {Name: "C"}})
	if err := s.SaveCues([]show.LightingCue{{Name: "Z", Settings: show.Settings{"x": true}, IsAIGenerated: true}}); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadCues()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "Z" || !got[0].IsAIGenerated {
		t.Errorf("got %+v", got)
	}
}

func TestLoadNeverSaved(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.LoadPresets(); !errors.Is(err, ErrNotFound) {
		t.Errorf("presets err = %v, want ErrNotFound", err)
	}
	if _, err := s.LoadScript(); !errors.Is(err, ErrNotFound) {
		t.Errorf("script err = %v, want ErrNotFound", err)
	}
}

func TestSavedEmptyListIsNotMissing(t *testing.T) {
	s := newTestStore(t)

	if err := s.SavePresets(nil); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadPresets()
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d presets, want 0", len(got))
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "show.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	items := []show.ScriptItem{{ID: 1700000000001, Text: "Welcome", LinkedCue: "House Up"}}
	if err := s.SaveScript(items); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, err := s2.LoadScript()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, items) {
		t.Errorf("got %+v, want %+v", got, items)
	}
}

func TestRestoreOverlaysSavedCollections(t *testing.T) {
	s := newTestStore(t)
	s.SavePresets([]show.Preset{{Name: "Saved", Settings: show.Settings{"aud-01": true}}})

	seed := show.DefaultSeed()
	wantCues := seed.Cues
	if err := Restore(s, &seed); err != nil {
		t.Fatal(err)
	}
	if len(seed.Presets) != 1 || seed.Presets[0].Name != "Saved" {
		t.Errorf("presets = %+v", seed.Presets)
	}
	if !reflect.DeepEqual(seed.Cues, wantCues) {
		t.Error("cues replaced although never saved")
	}
}

func TestBoltStoreAsPersister(t *testing.T) {
	s := newTestStore(t)
	var _ show.Persister = s

	sh := show.New(show.DefaultSeed(), show.Options{Persister: s})
	if _, err := sh.SavePreset("Finale"); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadPresets()
	if err != nil {
		t.Fatal(err)
	}
	if last := got[len(got)-1]; last.Name != "Finale" {
		t.Errorf("last preset = %q, want Finale", last.Name)
	}
}

func TestThemesRoundTripAndRestore(t *testing.T) {
	s := newTestStore(t)
	sh := show.New(show.DefaultSeed(), show.Options{Persister: s})
	if _, err := sh.AddTheme(show.VisualizerTheme{Name: "Deep Sea", Base: "#003366", Highlight: "#66ccff", Shadow: "#001122", IdleBase: "#224466", IdleHighlight: "#99ddff"}); err != nil {
		t.Fatal(err)
	}

	seed := show.DefaultSeed()
	if err := Restore(s, &seed); err != nil {
		t.Fatal(err)
	}
	last := seed.Themes[len(seed.Themes)-1]
	if last.Key != "deep-sea" || last.Highlight != "#66ccff" {
		t.Errorf("restored theme = %+v", last)
	}
	if len(seed.Themes) != len(show.DefaultSeed().Themes)+1 {
		t.Errorf("restored %d themes", len(seed.Themes))
	}
}
