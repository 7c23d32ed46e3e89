package show

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

func (s *Show) requireAssistant() error {
	if s.assistant == nil {
		return fmt.Errorf("ai assistant: %w", ErrUnavailable)
	}
	return nil
}

func externalErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrExternalService, err)
}

// GenerateCue asks the assistant for a lighting cue and stores it flagged as
// AI generated. Nothing is stored when the call fails or yields an unusable cue.
func (s *Show) GenerateCue(ctx context.Context, prompt string) (LightingCue, error) {
	if err := s.requireAssistant(); err != nil {
		return LightingCue{}, err
	}
	if strings.TrimSpace(prompt) == "" {
		return LightingCue{}, fmt.Errorf("prompt cannot be empty: %w", ErrValidation)
	}
	cue, err := s.assistant.GenerateLightingCue(ctx, prompt, s.Equipment())
	if err != nil {
		s.logger.Error("generate lighting cue", "err", err)
		return LightingCue{}, externalErr("generate lighting cue", err)
	}
	cue.IsAIGenerated = true
	stored, err := s.AddCue(cue)
	if err != nil {
		return LightingCue{}, externalErr("generate lighting cue", err)
	}
	return stored, nil
}

// GenerateTheme asks the assistant for a visualizer palette, stores it flagged
// as AI generated and selects it. Nothing is stored when the call fails or the
// palette is unusable.
func (s *Show) GenerateTheme(ctx context.Context, prompt string) (VisualizerTheme, error) {
	if err := s.requireAssistant(); err != nil {
		return VisualizerTheme{}, err
	}
	if strings.TrimSpace(prompt) == "" {
		return VisualizerTheme{}, fmt.Errorf("prompt cannot be empty: %w", ErrValidation)
	}
	theme, err := s.assistant.GenerateVisualizerTheme(ctx, prompt)
	if err != nil {
		s.logger.Error("generate visualizer theme", "err", err)
		return VisualizerTheme{}, externalErr("generate visualizer theme", err)
	}
	theme.IsAIGenerated = true
	s.mutate(func(o *outbox) {
		if theme, err = s.addThemeLocked(theme, o); err != nil {
			return
		}
		s.themes.Select(theme.Key)
		o.emit(EventThemeSelected, theme.Key)
	})
	if err != nil {
		return VisualizerTheme{}, externalErr("generate visualizer theme", err)
	}
	return theme, nil
}

// GenerateAnnouncement streams a new announcement into a placeholder item
// appended to the script. The placeholder is removed if generation fails.
func (s *Show) GenerateAnnouncement(ctx context.Context, prompt string) (ScriptItem, error) {
	if err := s.requireAssistant(); err != nil {
		return ScriptItem{}, err
	}
	if strings.TrimSpace(prompt) == "" {
		return ScriptItem{}, fmt.Errorf("prompt cannot be empty: %w", ErrValidation)
	}
	// The placeholder is shown to clients but only persisted once complete.
	var placeholder ScriptItem
	s.mutate(func(o *outbox) {
		placeholder = s.script.Add("")
		o.emit(EventScriptChanged, s.script.List())
	})

	err := s.assistant.StreamText(ctx, prompt, func(chunk string) {
		s.mutate(func(o *outbox) {
			if s.script.AppendText(placeholder.ID, chunk) {
				it, _ := s.script.Get(placeholder.ID)
				o.emit(EventScriptChanged, []ScriptItem{it})
			}
		})
	})
	if err != nil {
		s.DeleteScriptItem(placeholder.ID)
		s.logger.Error("generate announcement", "err", err)
		return ScriptItem{}, externalErr("generate announcement", err)
	}

	var it ScriptItem
	var ok bool
	s.mutate(func(o *outbox) {
		if it, ok = s.script.Get(placeholder.ID); ok {
			s.persistScript(o)
		}
	})
	if !ok {
		return ScriptItem{}, fmt.Errorf("script item %d removed during generation: %w", placeholder.ID, ErrNotFound)
	}
	return it, nil
}

// ImproveAnnouncement rewrites an existing item by streaming the assistant's
// version over it. On failure the original text is restored.
func (s *Show) ImproveAnnouncement(ctx context.Context, id int64, instruction string) (ScriptItem, error) {
	if err := s.requireAssistant(); err != nil {
		return ScriptItem{}, err
	}
	var original ScriptItem
	var found bool
	s.mutate(func(o *outbox) {
		if original, found = s.script.Get(id); found {
			s.script.SetText(id, "")
		}
	})
	if !found {
		return ScriptItem{}, fmt.Errorf("script item %d: %w", id, ErrNotFound)
	}

	prompt := improvePrompt(original.Text, instruction)
	err := s.assistant.StreamText(ctx, prompt, func(chunk string) {
		s.mutate(func(o *outbox) {
			if s.script.AppendText(id, chunk) {
				it, _ := s.script.Get(id)
				o.emit(EventScriptChanged, []ScriptItem{it})
			}
		})
	})

	var it ScriptItem
	s.mutate(func(o *outbox) {
		if err != nil {
			s.script.SetText(id, original.Text)
		}
		it, _ = s.script.Get(id)
		s.persistScript(o)
	})
	if err != nil {
		s.logger.Error("improve announcement", "id", id, "err", err)
		return it, externalErr("improve announcement", err)
	}
	return it, nil
}

func improvePrompt(text, instruction string) string {
	if strings.TrimSpace(instruction) == "" {
		instruction = "Make it more engaging and professional for a live event audience."
	}
	return fmt.Sprintf("Rewrite the following live event announcement. %s Reply with the announcement text only.\n\n%s", instruction, text)
}

// RegenerateScript replaces the whole script with a freshly generated one.
// The current script is kept if the call fails or returns nothing.
func (s *Show) RegenerateScript(ctx context.Context, prompt string) ([]ScriptItem, error) {
	if err := s.requireAssistant(); err != nil {
		return nil, err
	}
	texts, err := s.assistant.GenerateScript(ctx, prompt)
	if err != nil {
		s.logger.Error("regenerate script", "err", err)
		return nil, externalErr("regenerate script", err)
	}
	texts = slices.DeleteFunc(texts, func(t string) bool { return strings.TrimSpace(t) == "" })
	if len(texts) == 0 {
		return nil, externalErr("regenerate script", fmt.Errorf("empty script"))
	}
	var items []ScriptItem
	s.mutate(func(o *outbox) {
		items = s.script.Replace(texts)
		s.activeID = 0
		s.persistScript(o)
	})
	return items, nil
}

// Troubleshoot asks the assistant for a checklist for a device.
func (s *Show) Troubleshoot(ctx context.Context, id string) (string, error) {
	if err := s.requireAssistant(); err != nil {
		return "", err
	}
	it, ok := s.Device(id)
	if !ok {
		return "", fmt.Errorf("equipment %q: %w", id, ErrNotFound)
	}
	steps, err := s.assistant.TroubleshootingSteps(ctx, it)
	if err != nil {
		return "", externalErr("troubleshoot", err)
	}
	return steps, nil
}

// SuggestNextStatus asks the assistant which phase should follow. The
// suggestion is not applied.
func (s *Show) SuggestNextStatus(ctx context.Context) (EventStatus, error) {
	if err := s.requireAssistant(); err != nil {
		return "", err
	}
	s.mu.Lock()
	current, script, active := s.status, s.script.List(), s.activeID
	s.mu.Unlock()

	next, err := s.assistant.SuggestStatus(ctx, current, script, active)
	if err != nil {
		return "", externalErr("suggest status", err)
	}
	if !slices.Contains(SuggestableStatuses, next) {
		return "", externalErr("suggest status", fmt.Errorf("unexpected status %q", next))
	}
	return next, nil
}
