package show

import (
	"maps"
	"time"
)

// EquipmentType is the closed set of controllable device kinds.
type EquipmentType string

const (
	TypeAudio    EquipmentType = "Audio"
	TypeLighting EquipmentType = "Lighting"
	TypeVideo    EquipmentType = "Video"
	TypeAI       EquipmentType = "AI"
)

// Valid reports whether t is one of the known equipment types.
func (t EquipmentType) Valid() bool {
	switch t {
	case TypeAudio, TypeLighting, TypeVideo, TypeAI:
		return true
	}
	return false
}

// Status is the availability of a device.
type Status string

const (
	StatusOnline  Status = "Online"
	StatusOffline Status = "Offline"
)

// Valid reports whether s is Online or Offline.
func (s Status) Valid() bool {
	return s == StatusOnline || s == StatusOffline
}

// EquipmentItem is a controllable device. On is only meaningful while Status
// is Online.
type EquipmentItem struct {
	ID     string        `json:"id" yaml:"id"`
	Name   string        `json:"name" yaml:"name"`
	Type   EquipmentType `json:"type" yaml:"type"`
	Brand  string        `json:"brand,omitempty" yaml:"brand,omitempty"`
	Model  string        `json:"model,omitempty" yaml:"model,omitempty"`
	On     bool          `json:"on" yaml:"on"`
	Status Status        `json:"status" yaml:"status"`
}

// Settings maps equipment ID to desired on state. It may cover only a subset
// of the registry.
type Settings map[string]bool

// Preset is a named snapshot of equipment on/off values.
type Preset struct {
	Name     string   `json:"name" yaml:"name"`
	Settings Settings `json:"settings" yaml:"settings"`
}

// LightingCue is a named partial snapshot applied as an instantaneous overlay.
type LightingCue struct {
	Name          string   `json:"name" yaml:"name"`
	Settings      Settings `json:"settings" yaml:"settings"`
	IsAIGenerated bool     `json:"is_ai_generated,omitempty" yaml:"is_ai_generated,omitempty"`
}

// VisualizerTheme is a named five-color palette for the audience visualizer.
// Key is derived from Name and identifies the theme.
type VisualizerTheme struct {
	Key           string `json:"key" yaml:"key"`
	Name          string `json:"name" yaml:"name"`
	Base          string `json:"base" yaml:"base"`
	Highlight     string `json:"highlight" yaml:"highlight"`
	Shadow        string `json:"shadow" yaml:"shadow"`
	IdleBase      string `json:"idle_base" yaml:"idle_base"`
	IdleHighlight string `json:"idle_highlight" yaml:"idle_highlight"`
	IsAIGenerated bool   `json:"is_ai_generated,omitempty" yaml:"is_ai_generated,omitempty"`
}

// ScriptItem is one announcement. LinkedCue names a LightingCue and is not
// validated; a dangling link makes the cue trigger a no-op.
type ScriptItem struct {
	ID        int64  `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	LinkedCue string `json:"linked_cue,omitempty" yaml:"linked_cue,omitempty"`
}

// Notification is an ephemeral alert derived from a status transition.
type Notification struct {
	ID          string    `json:"id"`
	EquipmentID string    `json:"equipment_id"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// Command is the outbound "equipment-command" message.
type Command struct {
	ID    string `json:"id"`
	State bool   `json:"state"`
}

// StatusUpdate is the inbound "equipment-status-update" message.
type StatusUpdate struct {
	ID string `json:"id"`
	On bool   `json:"on"`
}

// EventStatus is the broadcast phase of the live event.
type EventStatus string

const (
	StatusStartingSoon          EventStatus = "Starting Soon"
	StatusLive                  EventStatus = "Live"
	StatusIntermission          EventStatus = "Intermission"
	StatusConcluded             EventStatus = "Concluded"
	StatusTechnicalDifficulties EventStatus = "Technical Difficulties"
)

// SuggestableStatuses are the phases the assistant may propose.
var SuggestableStatuses = []EventStatus{StatusStartingSoon, StatusLive, StatusIntermission, StatusConcluded}

// Valid reports whether s is a known event phase.
func (s EventStatus) Valid() bool {
	switch s {
	case StatusStartingSoon, StatusLive, StatusIntermission, StatusConcluded, StatusTechnicalDifficulties:
		return true
	}
	return false
}

// VoiceSpeed is the speaking rate for synthesized announcements.
type VoiceSpeed string

const (
	SpeedSlow   VoiceSpeed = "slow"
	SpeedNormal VoiceSpeed = "normal"
	SpeedFast   VoiceSpeed = "fast"
)

// VoiceSettings configures speech synthesis.
type VoiceSettings struct {
	VoiceName string     `json:"voice_name" yaml:"voice_name"`
	Speed     VoiceSpeed `json:"speed" yaml:"speed"`
	Pitch     float64    `json:"pitch" yaml:"pitch"`
}

// DefaultVoice matches the announcer voice used at startup.
var DefaultVoice = VoiceSettings{VoiceName: "Zephyr", Speed: SpeedNormal, Pitch: -4.0}

func cloneSettings(s Settings) Settings {
	if s == nil {
		return Settings{}
	}
	return maps.Clone(s)
}

func clonePreset(p Preset) Preset {
	return Preset{Name: p.Name, Settings: cloneSettings(p.Settings)}
}

func cloneCue(c LightingCue) LightingCue {
	return LightingCue{Name: c.Name, Settings: cloneSettings(c.Settings), IsAIGenerated: c.IsAIGenerated}
}
