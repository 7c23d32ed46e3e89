package show

import "context"

// Assistant is the generative AI capability. Every method may be slow or
// fail; callers never apply partial results.
type Assistant interface {
	// GenerateLightingCue proposes a cue for prompt given the current rig.
	GenerateLightingCue(ctx context.Context, prompt string, equipment []EquipmentItem) (LightingCue, error)
	// StreamText generates free text, calling onChunk for each piece as it arrives.
	StreamText(ctx context.Context, prompt string, onChunk func(string)) error
	// GenerateScript returns a list of announcement texts.
	GenerateScript(ctx context.Context, prompt string) ([]string, error)
	TroubleshootingSteps(ctx context.Context, item EquipmentItem) (string, error)
	SuggestStatus(ctx context.Context, current EventStatus, script []ScriptItem, activeID int64) (EventStatus, error)
	// GenerateVisualizerTheme proposes a named five-color palette for prompt.
	GenerateVisualizerTheme(ctx context.Context, prompt string) (VisualizerTheme, error)
	// Speak synthesizes text to audio bytes.
	Speak(ctx context.Context, text string, voice VoiceSettings) ([]byte, error)
}
