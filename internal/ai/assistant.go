package ai

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"google.golang.org/genai"

	"stage-command-center/internal/show"
)

const (
	announcerSystem = "You are the voice of a live event. Write short, warm, professional announcements meant to be read aloud. Reply with the announcement text only."
	lightingSystem  = "You are a lighting director for a live event. You only switch existing equipment on or off by id."
	scriptSystem    = "You write running orders of spoken announcements for live events."
	techSystem      = "You are a senior live event technician. Give concise numbered troubleshooting steps."
	statusSystem    = "You track the phase of a live event broadcast."
	themeSystem     = "You are a visual artist and color theorist designing palettes for an audio visualizer."
)

var cueSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"name": {Type: genai.TypeString, Description: "Short evocative cue name."},
		"settings": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"id": {Type: genai.TypeString},
					"on": {Type: genai.TypeBoolean},
				},
				Required: []string{"id", "on"},
			},
		},
	},
	Required: []string{"name", "settings"},
}

type cueResponse struct {
	Name     string `json:"name"`
	Settings []struct {
		ID string `json:"id"`
		On bool   `json:"on"`
	} `json:"settings"`
}

// GenerateLightingCue proposes a cue over the given rig. Only ids present in
// equipment survive; a cue with no usable settings is rejected.
func (c *Client) GenerateLightingCue(ctx context.Context, prompt string, equipment []show.EquipmentItem) (show.LightingCue, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Design a lighting cue for: %s\n\nAvailable equipment (id, name, type, status):\n", prompt)
	known := make(map[string]bool, len(equipment))
	for _, it := range equipment {
		known[it.ID] = true
		fmt.Fprintf(&b, "- %s, %s, %s, %s\n", it.ID, it.Name, it.Type, it.Status)
	}
	b.WriteString("\nOnly include equipment that should change. Never switch on Offline equipment.")

	var resp cueResponse
	if err := c.generateJSON(ctx, lightingSystem, b.String(), cueSchema, &resp); err != nil {
		return show.LightingCue{}, err
	}
	cue := show.LightingCue{Name: strings.TrimSpace(resp.Name), Settings: show.Settings{}, IsAIGenerated: true}
	for _, s := range resp.Settings {
		if known[s.ID] {
			cue.Settings[s.ID] = s.On
		}
	}
	if cue.Name == "" || len(cue.Settings) == 0 {
		return show.LightingCue{}, fmt.Errorf("%w: cue %q has no usable settings", ErrBadResponse, cue.Name)
	}
	return cue, nil
}

var scriptSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"script": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"script"},
}

// GenerateScript returns a fresh running order of announcements.
func (c *Client) GenerateScript(ctx context.Context, prompt string) ([]string, error) {
	full := fmt.Sprintf("Write 5 to 8 announcements, in running order, for this event: %s", prompt)
	var resp struct {
		Script []string `json:"script"`
	}
	if err := c.generateJSON(ctx, scriptSystem, full, scriptSchema, &resp); err != nil {
		return nil, err
	}
	out := slices.DeleteFunc(resp.Script, func(s string) bool { return strings.TrimSpace(s) == "" })
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty script", ErrBadResponse)
	}
	return out, nil
}

var themeSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"name": {Type: genai.TypeString, Description: "Creative name for the theme."},
		"colors": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"base":          {Type: genai.TypeString, Description: "Hex color of the active bars."},
				"highlight":     {Type: genai.TypeString, Description: "Hex color of the bar peaks."},
				"shadow":        {Type: genai.TypeString, Description: "Hex color of the background glow."},
				"idleBase":      {Type: genai.TypeString, Description: "Hex color of the bars while silent."},
				"idleHighlight": {Type: genai.TypeString, Description: "Hex color of the peaks while silent."},
			},
			Required: []string{"base", "highlight", "shadow", "idleBase", "idleHighlight"},
		},
	},
	Required: []string{"name", "colors"},
}

// GenerateVisualizerTheme proposes a named five-color palette. Color values
// are returned as given; the show validates them before storing.
func (c *Client) GenerateVisualizerTheme(ctx context.Context, prompt string) (show.VisualizerTheme, error) {
	full := fmt.Sprintf("Create a 5-color palette for an audio visualizer based on this theme: %q. "+
		"The colors should work well together and be valid hex codes. Give the theme a creative name.", prompt)
	var resp struct {
		Name   string `json:"name"`
		Colors struct {
			Base          string `json:"base"`
			Highlight     string `json:"highlight"`
			Shadow        string `json:"shadow"`
			IdleBase      string `json:"idleBase"`
			IdleHighlight string `json:"idleHighlight"`
		} `json:"colors"`
	}
	if err := c.generateJSON(ctx, themeSystem, full, themeSchema, &resp); err != nil {
		return show.VisualizerTheme{}, err
	}
	name := strings.TrimSpace(resp.Name)
	if name == "" {
		return show.VisualizerTheme{}, fmt.Errorf("%w: theme has no name", ErrBadResponse)
	}
	return show.VisualizerTheme{
		Key:           show.ThemeKey(name),
		Name:          name,
		Base:          resp.Colors.Base,
		Highlight:     resp.Colors.Highlight,
		Shadow:        resp.Colors.Shadow,
		IdleBase:      resp.Colors.IdleBase,
		IdleHighlight: resp.Colors.IdleHighlight,
		IsAIGenerated: true,
	}, nil
}

// TroubleshootingSteps returns a short checklist for a device.
func (c *Client) TroubleshootingSteps(ctx context.Context, item show.EquipmentItem) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "The %s device %q", item.Type, item.Name)
	if item.Brand != "" || item.Model != "" {
		fmt.Fprintf(&b, " (%s %s)", item.Brand, item.Model)
	}
	fmt.Fprintf(&b, " is %s during a live show. What should the crew check, in order?", strings.ToLower(string(item.Status)))

	resp, err := c.generate(ctx, c.model, b.String(), &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(techSystem),
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrBadResponse)
	}
	return text, nil
}

func statusSchema() *genai.Schema {
	enum := make([]string, len(show.SuggestableStatuses))
	for i, s := range show.SuggestableStatuses {
		enum[i] = string(s)
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"status": {Type: genai.TypeString, Enum: enum},
		},
		Required: []string{"status"},
	}
}

// SuggestStatus proposes the next event phase from the script position.
func (c *Client) SuggestStatus(ctx context.Context, current show.EventStatus, script []show.ScriptItem, activeID int64) (show.EventStatus, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Current status: %s\n\nScript:\n", current)
	for i, it := range script {
		marker := " "
		if it.ID == activeID {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %d. %s\n", marker, i+1, it.Text)
	}
	b.WriteString("\nThe line marked > was just announced. What should the event status be now?")

	var resp struct {
		Status string `json:"status"`
	}
	if err := c.generateJSON(ctx, statusSystem, b.String(), statusSchema(), &resp); err != nil {
		return "", err
	}
	st := show.EventStatus(resp.Status)
	if !slices.Contains(show.SuggestableStatuses, st) {
		return "", fmt.Errorf("%w: status %q", ErrBadResponse, resp.Status)
	}
	return st, nil
}
