package show

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the initial content of a show: the rig plus starting presets, cues,
// visualizer themes and script.
type Seed struct {
	Equipment []EquipmentItem   `yaml:"equipment"`
	Presets   []Preset          `yaml:"presets"`
	Cues      []LightingCue     `yaml:"cues"`
	Themes    []VisualizerTheme `yaml:"themes"`
	Script    []ScriptItem      `yaml:"script"`
	Status    EventStatus       `yaml:"status"`
}

// DefaultSeed returns the built-in demo show.
func DefaultSeed() Seed {
	return Seed{
		Equipment: []EquipmentItem{
			{ID: "aud-01", Name: "Main Mixer", Type: TypeAudio, Brand: "Yamaha", Model: "CL5", On: true, Status: StatusOnline},
			{ID: "aud-02", Name: "Stage Monitors", Type: TypeAudio, Brand: "L-Acoustics", Model: "X15", On: true, Status: StatusOnline},
			{ID: "vid-01", Name: "Center Video Wall", Type: TypeVideo, Brand: "ROE", Model: "Black Pearl", On: false, Status: StatusOnline},
			{ID: "vid-02", Name: "Left Video Wall", Type: TypeVideo, Brand: "ROE", Model: "Black Pearl", On: false, Status: StatusOnline},
			{ID: "vid-03", Name: "Right Video Wall", Type: TypeVideo, Brand: "ROE", Model: "Black Pearl", On: false, Status: StatusOnline},
			{ID: "light-01", Name: "Stage Light Rig A", Type: TypeLighting, Brand: "Martin", Model: "MAC Aura", On: false, Status: StatusOnline},
			{ID: "light-02", Name: "House Lights", Type: TypeLighting, Brand: "ETC", Model: "Source Four", On: true, Status: StatusOnline},
			{ID: "ai-ada-01", Name: "ADA Interpreter Node", Type: TypeAI, On: true, Status: StatusOnline},
			{ID: "aud-03", Name: "Backup Mic", Type: TypeAudio, Brand: "Shure", Model: "SM58", On: false, Status: StatusOffline},
		},
		Presets: []Preset{
			{Name: "Pre-Show", Settings: Settings{"aud-01": true, "aud-02": false, "vid-01": true, "vid-02": false, "vid-03": false, "light-01": false, "light-02": true}},
			{Name: "Showtime", Settings: Settings{"aud-01": true, "aud-02": true, "vid-01": true, "vid-02": true, "vid-03": true, "light-01": true, "light-02": false}},
			{Name: "Intermission", Settings: Settings{"aud-01": true, "aud-02": false, "vid-01": true, "vid-02": false, "vid-03": false, "light-01": false, "light-02": true}},
		},
		Cues: []LightingCue{
			{Name: "Blackout", Settings: Settings{"light-01": false, "light-02": false}},
			{Name: "Spotlight", Settings: Settings{"light-01": true, "light-02": false}},
			{Name: "House Up", Settings: Settings{"light-01": false, "light-02": true}},
		},
		Themes: []VisualizerTheme{
			{Key: "classic", Name: "Classic", Base: "#1e3a8a", Highlight: "#60a5fa", Shadow: "#0f172a", IdleBase: "#334155", IdleHighlight: "#94a3b8"},
			{Key: "sunset", Name: "Sunset", Base: "#c2410c", Highlight: "#fbbf24", Shadow: "#451a03", IdleBase: "#7c2d12", IdleHighlight: "#fdba74"},
		},
		Script: []ScriptItem{
			{ID: 1, Text: "Ladies and gentlemen, welcome to the grand opening. Please take your seats.", LinkedCue: "House Up"},
			{ID: 2, Text: "We are thrilled to have you here. The show will begin in five minutes."},
			{ID: 3, Text: "Now, please welcome to the stage, our keynote speaker.", LinkedCue: "Spotlight"},
			{ID: 4, Text: "That was an insightful presentation. We will now have a short 15-minute break.", LinkedCue: "House Up"},
			{ID: 5, Text: "I'd also like to introduce my co-director, Ada. She will be assisting with real-time speech interpretation."},
			{ID: 6, Text: "Thank you all for coming. We hope you enjoyed the event. Have a safe journey home.", LinkedCue: "House Up"},
		},
		Status: StatusStartingSoon,
	}
}

// LoadSeed reads a YAML show file. Sections that are absent fall back to the
// built-in defaults; equipment entries must have a known type.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("parse seed file: %w", err)
	}
	def := DefaultSeed()
	if s.Equipment == nil {
		s.Equipment = def.Equipment
	}
	if s.Presets == nil {
		s.Presets = def.Presets
	}
	if s.Cues == nil {
		s.Cues = def.Cues
	}
	if s.Themes == nil {
		s.Themes = def.Themes
	}
	if s.Script == nil {
		s.Script = def.Script
	}
	if s.Status == "" {
		s.Status = def.Status
	}
	if err := s.validate(); err != nil {
		return Seed{}, err
	}
	return s, nil
}

func (s Seed) validate() error {
	seen := make(map[string]bool, len(s.Equipment))
	for i, it := range s.Equipment {
		if it.ID == "" {
			return fmt.Errorf("equipment[%d]: id is required: %w", i, ErrValidation)
		}
		if seen[it.ID] {
			return fmt.Errorf("equipment[%d]: duplicate id %q: %w", i, it.ID, ErrValidation)
		}
		seen[it.ID] = true
		if !it.Type.Valid() {
			return fmt.Errorf("equipment %q: unknown type %q: %w", it.ID, it.Type, ErrValidation)
		}
		if it.Status != "" && !it.Status.Valid() {
			return fmt.Errorf("equipment %q: unknown status %q: %w", it.ID, it.Status, ErrValidation)
		}
	}
	for i, t := range s.Themes {
		if _, err := normalizeTheme(t); err != nil {
			return fmt.Errorf("themes[%d]: %w", i, err)
		}
	}
	if !s.Status.Valid() {
		return fmt.Errorf("unknown event status %q: %w", s.Status, ErrValidation)
	}
	return nil
}
