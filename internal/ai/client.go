// Package ai implements the show assistant on top of the Gemini API.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"stage-command-center/internal/show"
)

// ErrBadResponse is returned when the model answers with something that
// cannot be used. It is not retried.
var ErrBadResponse = errors.New("ai: unusable model response")

const (
	defaultModel       = "gemini-2.5-flash"
	defaultSpeechModel = "gemini-2.5-flash-preview-tts"
	defaultTimeout     = 60 * time.Second
)

// Config configures the Gemini assistant.
type Config struct {
	APIKey      string
	Model       string
	SpeechModel string
	Timeout     time.Duration
	Retry       RetryConfig
}

// generator is the slice of the genai client the assistant uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Client implements show.Assistant.
type Client struct {
	models      generator
	model       string
	speechModel string
	timeout     time.Duration
	retry       RetryConfig
	logger      *slog.Logger
}

var _ show.Assistant = (*Client)(nil)

// New creates a Gemini-backed assistant.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ai: api key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("ai: create client: %w", err)
	}
	return newClient(gc.Models, cfg, logger), nil
}

func newClient(models generator, cfg Config, logger *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = defaultSpeechModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Client{
		models:      models,
		model:       cfg.Model,
		speechModel: cfg.SpeechModel,
		timeout:     cfg.Timeout,
		retry:       cfg.Retry,
		logger:      logger.With("component", "ai"),
	}
}

func systemInstruction(text string) *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{Text: text}}}
}

// generate runs a non-streaming request with timeout and retry.
func (c *Client) generate(ctx context.Context, model, prompt string, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp *genai.GenerateContentResponse
	err := withRetry(ctx, c.retry, func() error {
		r, err := c.models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
		if err != nil {
			c.logger.Debug("model call failed", "model", model, "err", err)
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// generateJSON asks for a JSON response matching schema and decodes it into out.
func (c *Client) generateJSON(ctx context.Context, system, prompt string, schema *genai.Schema, out any) error {
	resp, err := c.generate(ctx, c.model, prompt, &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(system),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	})
	if err != nil {
		return err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return fmt.Errorf("%w: empty response", ErrBadResponse)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

// StreamText streams free text. Only the opening of the stream is retried;
// once a chunk has been delivered a failure is returned as is.
func (c *Client) StreamText(ctx context.Context, prompt string, onChunk func(string)) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(announcerSystem),
	}
	return withRetry(ctx, c.retry, func() error {
		delivered := false
		for resp, err := range c.models.GenerateContentStream(ctx, c.model, genai.Text(prompt), cfg) {
			if err != nil {
				if delivered {
					return fmt.Errorf("%w: stream interrupted: %v", ErrBadResponse, err)
				}
				return err
			}
			if chunk := resp.Text(); chunk != "" {
				delivered = true
				onChunk(chunk)
			}
		}
		if !delivered {
			return fmt.Errorf("%w: empty stream", ErrBadResponse)
		}
		return nil
	})
}

// Speak synthesizes text with the configured speech model.
func (c *Client) Speak(ctx context.Context, text string, voice show.VoiceSettings) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: nothing to say", ErrBadResponse)
	}
	cfg := &genai.GenerateContentConfig{
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice.VoiceName},
			},
		},
	}
	cfg.ResponseModalities = append(cfg.ResponseModalities, "AUDIO")

	resp, err := c.generate(ctx, c.speechModel, speechPrompt(text, voice), cfg)
	if err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return p.InlineData.Data, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no audio in response", ErrBadResponse)
}

func speechPrompt(text string, voice show.VoiceSettings) string {
	var style []string
	switch voice.Speed {
	case show.SpeedSlow:
		style = append(style, "slowly")
	case show.SpeedFast:
		style = append(style, "briskly")
	}
	switch {
	case voice.Pitch <= -2:
		style = append(style, "in a deep, low voice")
	case voice.Pitch >= 2:
		style = append(style, "in a bright, high voice")
	}
	if len(style) == 0 {
		return "Announce clearly: " + text
	}
	return "Announce clearly, " + strings.Join(style, " and ") + ": " + text
}
