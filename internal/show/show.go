package show

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Persister saves the user-editable collections. The equipment state itself
// is never persisted.
type Persister interface {
	SavePresets(presets []Preset) error
	SaveCues(cues []LightingCue) error
	SaveScript(items []ScriptItem) error
	SaveThemes(themes []VisualizerTheme) error
}

// Options configures a Show. Only Dispatcher is required.
type Options struct {
	Dispatcher Dispatcher
	Assistant  Assistant
	Persister  Persister
	Events     *EventBus
	Logger     *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// Pick returns a value in [0, n) for the failure simulator. Defaults to rand.IntN.
	Pick func(n int) int
}

// Show owns the whole live state: equipment, presets, cues, notifications,
// script and event phase. Each method is atomic; dispatcher commands and
// events are delivered after the internal lock is released.
type Show struct {
	mu         sync.Mutex
	registry   *Registry
	presets    *PresetStore
	cues       *CueStore
	themes     *ThemeStore
	reconciler *Reconciler
	script     *Script
	status     EventStatus
	voice      VoiceSettings
	activeID   int64

	dispatcher Dispatcher
	assistant  Assistant
	persister  Persister
	events     *EventBus
	logger     *slog.Logger
	pick       func(n int) int

	// sendMu guards the command queue. Commands are queued under mu in
	// mutation order and sent by one drainer at a time, without holding mu.
	sendMu    sync.Mutex
	sendQueue []Command
	sending   bool

	unsubscribe func()
}

// New creates a show from seed.
func New(seed Seed, opts Options) *Show {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Events == nil {
		opts.Events = NewEventBus(opts.Logger)
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = NewLoopback()
	}
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}
	status := seed.Status
	if !status.Valid() {
		status = StatusStartingSoon
	}
	reg := NewRegistry(seed.Equipment)
	return &Show{
		registry:   reg,
		presets:    NewPresetStore(seed.Presets),
		cues:       NewCueStore(seed.Cues),
		themes:     NewThemeStore(seed.Themes),
		reconciler: NewReconciler(reg.Snapshot(), opts.Now),
		script:     NewScript(seed.Script, opts.Now),
		status:     status,
		voice:      DefaultVoice,
		dispatcher: opts.Dispatcher,
		assistant:  opts.Assistant,
		persister:  opts.Persister,
		events:     opts.Events,
		logger:     opts.Logger,
		pick:       opts.Pick,
	}
}

// Events returns the bus every state change is published on.
func (s *Show) Events() *EventBus {
	return s.events
}

// Start subscribes to dispatcher status updates.
func (s *Show) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		return
	}
	s.unsubscribe = s.dispatcher.OnStatusUpdate(s.handleStatusUpdate)
}

// Stop unsubscribes from the dispatcher.
func (s *Show) Stop() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// outbox collects side effects produced under the lock.
type outbox struct {
	commands []Command
	events   []Event
	persist  []func(Persister) error
}

func (o *outbox) emit(typ string, data any) {
	o.events = append(o.events, Event{Type: typ, Data: data})
}

// drainCommands sends queued commands in order. If another goroutine is
// already draining, it picks up whatever was queued here.
func (s *Show) drainCommands() {
	s.sendMu.Lock()
	if s.sending {
		s.sendMu.Unlock()
		return
	}
	s.sending = true
	for len(s.sendQueue) > 0 {
		cmd := s.sendQueue[0]
		s.sendQueue = s.sendQueue[1:]
		s.sendMu.Unlock()

		if err := s.dispatcher.SendCommand(cmd); err != nil {
			s.logger.Warn("send equipment command", "id", cmd.ID, "state", cmd.State, "err", err)
		}
		s.events.Emit(Event{Type: EventEquipmentCommand, Data: cmd})

		s.sendMu.Lock()
	}
	s.sending = false
	s.sendMu.Unlock()
}

func (s *Show) flush(o *outbox) {
	for _, ev := range o.events {
		s.events.Emit(ev)
	}
	if s.persister != nil {
		for _, fn := range o.persist {
			if err := fn(s.persister); err != nil {
				s.logger.Error("persist show state", "err", err)
			}
		}
	}
}

// settle runs after every registry mutation: it diffs against before, emits a
// change event per modified device and feeds the reconciler.
func (s *Show) settle(before []EquipmentItem, o *outbox) {
	after := s.registry.Snapshot()
	prev := indexByID(before)
	for _, it := range after {
		p, ok := prev[it.ID]
		if ok && p == it {
			continue
		}
		o.emit(EventEquipmentChanged, it)
		if ok && p.Status != it.Status {
			if it.Status == StatusOffline {
				o.emit(EventEquipmentOffline, it)
			} else {
				o.emit(EventEquipmentOnline, it)
			}
		}
	}
	added, removed := s.reconciler.Observe(after)
	for _, n := range removed {
		o.emit(EventNotificationRemoved, n)
	}
	for _, n := range added {
		o.emit(EventNotificationAdded, n)
	}
}

func (s *Show) persistPresets(o *outbox) {
	list := s.presets.List()
	o.emit(EventPresetsChanged, list)
	o.persist = append(o.persist, func(p Persister) error { return p.SavePresets(list) })
}

func (s *Show) persistCues(o *outbox) {
	list := s.cues.List()
	o.persist = append(o.persist, func(p Persister) error { return p.SaveCues(list) })
}

func (s *Show) persistScript(o *outbox) {
	list := s.script.List()
	o.emit(EventScriptChanged, list)
	o.persist = append(o.persist, func(p Persister) error { return p.SaveScript(list) })
}

func (s *Show) persistThemes(o *outbox) {
	list := s.themes.List()
	o.persist = append(o.persist, func(p Persister) error { return p.SaveThemes(list) })
}

// mutate runs fn under the lock and flushes its side effects afterwards.
func (s *Show) mutate(fn func(o *outbox)) {
	var o outbox
	s.mu.Lock()
	fn(&o)
	if len(o.commands) > 0 {
		s.sendMu.Lock()
		s.sendQueue = append(s.sendQueue, o.commands...)
		s.sendMu.Unlock()
	}
	s.mu.Unlock()
	s.drainCommands()
	s.flush(&o)
}

func (s *Show) handleStatusUpdate(u StatusUpdate) {
	s.mutate(func(o *outbox) {
		before := s.registry.Snapshot()
		if !s.registry.ApplyStatusUpdate(u) {
			return
		}
		s.settle(before, o)
	})
}

// --- Equipment ---

// Equipment returns a snapshot of all devices.
func (s *Show) Equipment() []EquipmentItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Snapshot()
}

// Device returns a single device.
func (s *Show) Device(id string) (EquipmentItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Get(id)
}

// Toggle sets device id to !expected and sends the command. Unknown or
// Offline devices are ignored and false is returned.
func (s *Show) Toggle(id string, expected bool) bool {
	var ok bool
	s.mutate(func(o *outbox) {
		before := s.registry.Snapshot()
		var cmd Command
		cmd, ok = s.registry.Toggle(id, expected)
		if !ok {
			s.logger.Debug("toggle ignored", "id", id)
			return
		}
		o.commands = append(o.commands, cmd)
		s.settle(before, o)
	})
	return ok
}

// Flip inverts the stored on state of a device.
func (s *Show) Flip(id string) bool {
	var ok bool
	s.mutate(func(o *outbox) {
		it, found := s.registry.Get(id)
		if !found {
			return
		}
		before := s.registry.Snapshot()
		var cmd Command
		cmd, ok = s.registry.Toggle(id, it.On)
		if !ok {
			return
		}
		o.commands = append(o.commands, cmd)
		s.settle(before, o)
	})
	return ok
}

// SetStatus changes the availability of a device.
func (s *Show) SetStatus(id string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("status %q: %w", status, ErrValidation)
	}
	var err error
	s.mutate(func(o *outbox) {
		before := s.registry.Snapshot()
		if !s.registry.SetStatus(id, status) {
			err = fmt.Errorf("equipment %q: %w", id, ErrNotFound)
			return
		}
		s.settle(before, o)
	})
	return err
}

// SimulateFailure knocks one random Online device Offline, or brings every
// device back Online when none are left.
func (s *Show) SimulateFailure() (failedID string, reset bool) {
	s.mutate(func(o *outbox) {
		before := s.registry.Snapshot()
		failedID, reset = s.registry.SimulateFailure(s.pick)
		s.settle(before, o)
	})
	if failedID != "" {
		s.logger.Info("simulated equipment failure", "id", failedID)
	} else if reset {
		s.logger.Info("simulated failure reset, all equipment online")
	}
	return failedID, reset
}

// RunFailureSimulator calls SimulateFailure every interval until ctx is done.
func (s *Show) RunFailureSimulator(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SimulateFailure()
		}
	}
}

func (s *Show) applySettings(settings Settings, o *outbox) {
	before := s.registry.Snapshot()
	o.commands = append(o.commands, s.registry.ApplySettings(settings)...)
	s.settle(before, o)
}

// --- Presets ---

// Presets returns all presets in display order.
func (s *Show) Presets() []Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presets.List()
}

// LoadPreset applies a preset to the rig. Unknown names are a no-op.
func (s *Show) LoadPreset(name string) bool {
	var ok bool
	s.mutate(func(o *outbox) {
		var p Preset
		p, ok = s.presets.Get(name)
		if !ok {
			s.logger.Debug("preset not found", "name", name)
			return
		}
		s.applySettings(p.Settings, o)
		o.emit(EventPresetLoaded, p.Name)
	})
	return ok
}

// SavePreset snapshots the current rig under a new name.
func (s *Show) SavePreset(name string) (Preset, error) {
	var p Preset
	var err error
	s.mutate(func(o *outbox) {
		p, err = s.presets.Save(name, s.registry.Settings())
		if err != nil {
			return
		}
		s.persistPresets(o)
	})
	return p, err
}

// UpdatePreset overwrites a preset with the current rig. Unknown names are a no-op.
func (s *Show) UpdatePreset(name string) bool {
	var ok bool
	s.mutate(func(o *outbox) {
		if ok = s.presets.Update(name, s.registry.Settings()); ok {
			s.persistPresets(o)
		}
	})
	return ok
}

// DeletePreset removes a preset. Unknown names are a no-op.
func (s *Show) DeletePreset(name string) bool {
	var ok bool
	s.mutate(func(o *outbox) {
		if ok = s.presets.Delete(name); ok {
			s.persistPresets(o)
		}
	})
	return ok
}

// ReorderPresets sets the display order.
func (s *Show) ReorderPresets(names []string) error {
	var err error
	s.mutate(func(o *outbox) {
		if err = s.presets.Reorder(names); err == nil {
			s.persistPresets(o)
		}
	})
	return err
}

// --- Cues ---

// Cues returns all lighting cues.
func (s *Show) Cues() []LightingCue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cues.List()
}

// TriggerCue applies a cue. A missing cue is logged and ignored.
func (s *Show) TriggerCue(name string) bool {
	var ok bool
	s.mutate(func(o *outbox) {
		ok = s.triggerCueLocked(name, o)
	})
	return ok
}

func (s *Show) triggerCueLocked(name string, o *outbox) bool {
	cue, ok := s.cues.Get(name)
	if !ok {
		s.logger.Warn("lighting cue not found", "cue", name)
		return false
	}
	s.applySettings(cue.Settings, o)
	o.emit(EventCueTriggered, cue.Name)
	return true
}

// AddCue stores a cue. Settings for unknown devices are dropped; a cue with
// no name or no remaining settings is rejected.
func (s *Show) AddCue(cue LightingCue) (LightingCue, error) {
	var err error
	s.mutate(func(o *outbox) {
		cue, err = s.addCueLocked(cue, o)
	})
	return cue, err
}

func (s *Show) addCueLocked(cue LightingCue, o *outbox) (LightingCue, error) {
	cue.Name = strings.TrimSpace(cue.Name)
	if cue.Name == "" {
		return LightingCue{}, fmt.Errorf("cue name cannot be empty: %w", ErrValidation)
	}
	settings := make(Settings, len(cue.Settings))
	for id, v := range cue.Settings {
		if _, ok := s.registry.Get(id); ok {
			settings[id] = v
		}
	}
	if len(settings) == 0 {
		return LightingCue{}, fmt.Errorf("cue %q has no known equipment: %w", cue.Name, ErrValidation)
	}
	cue.Settings = settings
	if s.cues.Add(cue) {
		s.logger.Warn("lighting cue name shadows an existing cue", "cue", cue.Name)
	}
	o.emit(EventCueAdded, cloneCue(cue))
	s.persistCues(o)
	return cloneCue(cue), nil
}

// --- Visualizer themes ---

// Themes returns all visualizer themes.
func (s *Show) Themes() []VisualizerTheme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.themes.List()
}

// ActiveTheme returns the key of the selected visualizer theme.
func (s *Show) ActiveTheme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.themes.Active()
}

// AddTheme stores a theme, replacing any theme whose name yields the same key.
func (s *Show) AddTheme(theme VisualizerTheme) (VisualizerTheme, error) {
	var err error
	s.mutate(func(o *outbox) {
		theme, err = s.addThemeLocked(theme, o)
	})
	return theme, err
}

func (s *Show) addThemeLocked(theme VisualizerTheme, o *outbox) (VisualizerTheme, error) {
	theme, err := normalizeTheme(theme)
	if err != nil {
		return VisualizerTheme{}, err
	}
	if s.themes.Put(theme) {
		s.logger.Info("visualizer theme replaced", "theme", theme.Key)
	}
	o.emit(EventThemeAdded, theme)
	s.persistThemes(o)
	return theme, nil
}

// SelectTheme makes the theme with key the active one.
func (s *Show) SelectTheme(key string) error {
	var err error
	s.mutate(func(o *outbox) {
		if !s.themes.Select(key) {
			err = fmt.Errorf("visualizer theme %q: %w", key, ErrNotFound)
			return
		}
		o.emit(EventThemeSelected, key)
	})
	return err
}

// --- Notifications ---

// Notifications returns the current alerts, newest first.
func (s *Show) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler.Notifications()
}

// DismissNotification removes one alert.
func (s *Show) DismissNotification(id string) bool {
	var ok bool
	s.mutate(func(o *outbox) {
		var n Notification
		for _, cur := range s.reconciler.Notifications() {
			if cur.ID == id {
				n = cur
			}
		}
		if ok = s.reconciler.Dismiss(id); ok {
			o.emit(EventNotificationRemoved, n)
		}
	})
	return ok
}

// --- Script ---

// Script returns all announcements in order.
func (s *Show) Script() []ScriptItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.script.List()
}

// ActiveScriptID returns the item currently being played, or 0.
func (s *Show) ActiveScriptID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// AddScriptItem appends an announcement.
func (s *Show) AddScriptItem(text string) ScriptItem {
	var it ScriptItem
	s.mutate(func(o *outbox) {
		it = s.script.Add(text)
		s.persistScript(o)
	})
	return it
}

// DeleteScriptItem removes an announcement.
func (s *Show) DeleteScriptItem(id int64) bool {
	var ok bool
	s.mutate(func(o *outbox) {
		if ok = s.script.Delete(id); ok {
			if s.activeID == id {
				s.activeID = 0
			}
			s.persistScript(o)
		}
	})
	return ok
}

// SetScriptText replaces the text of an announcement.
func (s *Show) SetScriptText(id int64, text string) error {
	var err error
	s.mutate(func(o *outbox) {
		if !s.script.SetText(id, text) {
			err = fmt.Errorf("script item %d: %w", id, ErrNotFound)
			return
		}
		s.persistScript(o)
	})
	return err
}

// LinkCue links an announcement to a cue by name. The cue need not exist.
func (s *Show) LinkCue(id int64, cue string) error {
	var err error
	s.mutate(func(o *outbox) {
		if !s.script.LinkCue(id, strings.TrimSpace(cue)) {
			err = fmt.Errorf("script item %d: %w", id, ErrNotFound)
			return
		}
		s.persistScript(o)
	})
	return err
}

// PlayScriptItem marks an announcement active and fires its linked cue. When
// an assistant is configured the text is also synthesized and the audio
// returned; a synthesis failure clears the active item.
func (s *Show) PlayScriptItem(ctx context.Context, id int64) ([]byte, error) {
	var (
		it    ScriptItem
		voice VoiceSettings
		err   error
	)
	s.mutate(func(o *outbox) {
		var ok bool
		it, ok = s.script.Get(id)
		if !ok {
			err = fmt.Errorf("script item %d: %w", id, ErrNotFound)
			return
		}
		s.activeID = id
		voice = s.voice
		o.emit(EventScriptPlaying, it)
		if it.LinkedCue != "" {
			s.triggerCueLocked(it.LinkedCue, o)
		}
	})
	if err != nil {
		return nil, err
	}
	if s.assistant == nil {
		return nil, nil
	}

	audio, err := s.assistant.Speak(ctx, it.Text, voice)
	if err != nil {
		s.mu.Lock()
		if s.activeID == id {
			s.activeID = 0
		}
		s.mu.Unlock()
		s.logger.Error("speech synthesis failed", "id", id, "err", err)
		return nil, fmt.Errorf("speak script item %d: %w: %w", id, ErrExternalService, err)
	}
	return audio, nil
}

// StopPlayback clears the active announcement.
func (s *Show) StopPlayback() {
	s.mu.Lock()
	s.activeID = 0
	s.mu.Unlock()
}

// --- Event status and voice ---

// EventStatus returns the current broadcast phase.
func (s *Show) EventStatus() EventStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetEventStatus changes the broadcast phase.
func (s *Show) SetEventStatus(status EventStatus) error {
	if !status.Valid() {
		return fmt.Errorf("event status %q: %w", status, ErrValidation)
	}
	s.mutate(func(o *outbox) {
		if s.status == status {
			return
		}
		s.status = status
		o.emit(EventStatusChanged, status)
	})
	return nil
}

// Voice returns the speech settings.
func (s *Show) Voice() VoiceSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice
}

// SetVoice changes the speech settings.
func (s *Show) SetVoice(v VoiceSettings) error {
	switch v.Speed {
	case SpeedSlow, SpeedNormal, SpeedFast:
	default:
		return fmt.Errorf("voice speed %q: %w", v.Speed, ErrValidation)
	}
	if strings.TrimSpace(v.VoiceName) == "" {
		return fmt.Errorf("voice name cannot be empty: %w", ErrValidation)
	}
	s.mu.Lock()
	s.voice = v
	s.mu.Unlock()
	return nil
}
