package show

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type fakeAssistant struct {
	cue       LightingCue
	cueErr    error
	chunks    []string
	streamErr error
	script    []string
	scriptErr error
	steps     string
	status    EventStatus
	audio     []byte
	speakErr  error
	theme     VisualizerTheme
	themeErr  error

	// streaming runs before the first chunk is delivered.
	streaming  func()
	lastPrompt string
}

func (f *fakeAssistant) GenerateLightingCue(ctx context.Context, prompt string, equipment []EquipmentItem) (LightingCue, error) {
	f.lastPrompt = prompt
	return f.cue, f.cueErr
}

func (f *fakeAssistant) StreamText(ctx context.Context, prompt string, onChunk func(string)) error {
	f.lastPrompt = prompt
	if f.streaming != nil {
		f.streaming()
	}
	for _, c := range f.chunks {
		onChunk(c)
	}
	return f.streamErr
}

func (f *fakeAssistant) GenerateScript(ctx context.Context, prompt string) ([]string, error) {
	return f.script, f.scriptErr
}

func (f *fakeAssistant) TroubleshootingSteps(ctx context.Context, item EquipmentItem) (string, error) {
	return f.steps + item.Name, nil
}

func (f *fakeAssistant) SuggestStatus(ctx context.Context, current EventStatus, script []ScriptItem, activeID int64) (EventStatus, error) {
	return f.status, nil
}

func (f *fakeAssistant) Speak(ctx context.Context, text string, voice VoiceSettings) ([]byte, error) {
	return f.audio, f.speakErr
}

func (f *fakeAssistant) GenerateVisualizerTheme(ctx context.Context, prompt string) (VisualizerTheme, error) {
	f.lastPrompt = prompt
	return f.theme, f.themeErr
}

type memPersister struct {
	mu      sync.Mutex
	presets []Preset
	cues    []LightingCue
	script  []ScriptItem
	themes  []VisualizerTheme
	calls   int
}

func (m *memPersister) SavePresets(p []Preset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presets = p
	m.calls++
	return nil
}

func (m *memPersister) SaveCues(c []LightingCue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cues = c
	m.calls++
	return nil
}

func (m *memPersister) SaveScript(s []ScriptItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = s
	m.calls++
	return nil
}

func (m *memPersister) SaveThemes(t []VisualizerTheme) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.themes = t
	m.calls++
	return nil
}

func newTestShow(t *testing.T, seed Seed, opts Options) (*Show, *Loopback) {
	t.Helper()
	lb := NewLoopback()
	opts.Dispatcher = lb
	opts.Logger = newTestLogger()
	if opts.Pick == nil {
		opts.Pick = func(int) int { return 0 }
	}
	s := New(seed, opts)
	s.Start()
	t.Cleanup(s.Stop)
	return s, lb
}

func twoLights() Seed {
	return Seed{
		Equipment: []EquipmentItem{
			{ID: "L1", Name: "Light One", Type: TypeLighting, Status: StatusOnline},
			{ID: "L2", Name: "Light Two", Type: TypeLighting, Status: StatusOnline},
		},
	}
}

func equipmentOn(s *Show) map[string]bool {
	return onStates(s.Equipment())
}

func TestShowEndToEnd(t *testing.T) {
	s, lb := newTestShow(t, twoLights(), Options{})

	s.Toggle("L1", false)
	s.Toggle("L2", false)
	p, err := s.SavePreset("Bright")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p.Settings, Settings{"L1": true, "L2": true}) {
		t.Fatalf("Bright = %v", p.Settings)
	}

	s.Toggle("L1", true)
	s.Toggle("L2", true)
	if !s.LoadPreset("Bright") {
		t.Fatal("preset not found")
	}
	if got := equipmentOn(s); !got["L1"] || !got["L2"] {
		t.Fatalf("after load: %v", got)
	}

	if err := s.SetStatus("L1", StatusOffline); err != nil {
		t.Fatal(err)
	}
	l1, _ := s.Device("L1")
	if l1.On || l1.Status != StatusOffline {
		t.Fatalf("L1 = %+v", l1)
	}

	sentBefore := len(lb.Sent())
	s.LoadPreset("Bright")
	l1, _ = s.Device("L1")
	l2, _ := s.Device("L2")
	if l1.On {
		t.Error("offline L1 was switched on by preset load")
	}
	if !l2.On {
		t.Error("L2 not on")
	}
	sent := lb.Sent()[sentBefore:]
	if !reflect.DeepEqual(sent, []Command{{ID: "L2", State: true}}) {
		t.Errorf("commands after offline load = %+v", sent)
	}
}

func TestShowCueIdempotent(t *testing.T) {
	seed := twoLights()
	seed.Cues = []LightingCue{{Name: "Half", Settings: Settings{"L1": true}}}
	s, _ := newTestShow(t, seed, Options{})

	s.TriggerCue("Half")
	once := equipmentOn(s)
	s.TriggerCue("Half")
	twice := equipmentOn(s)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("once=%v twice=%v", once, twice)
	}
}

func TestShowPresetConflictLeavesState(t *testing.T) {
	s, _ := newTestShow(t, twoLights(), Options{})
	if _, err := s.SavePreset("Foo"); err != nil {
		t.Fatal(err)
	}
	eq := s.Equipment()
	presets := s.Presets()

	_, err := s.SavePreset("foo")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if !reflect.DeepEqual(eq, s.Equipment()) || !reflect.DeepEqual(presets, s.Presets()) {
		t.Error("failed save changed state")
	}
}

func TestShowDanglingCueOnPlayback(t *testing.T) {
	seed := twoLights()
	seed.Script = []ScriptItem{{ID: 1, Text: "Welcome", LinkedCue: "Nonexistent"}}
	s, lb := newTestShow(t, seed, Options{})
	before := s.Equipment()

	audio, err := s.PlayScriptItem(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if audio != nil {
		t.Error("audio without assistant")
	}
	if !reflect.DeepEqual(before, s.Equipment()) {
		t.Error("dangling cue changed equipment")
	}
	if len(lb.Sent()) != 0 {
		t.Error("dangling cue sent commands")
	}
	if s.ActiveScriptID() != 1 {
		t.Errorf("active = %d, want 1", s.ActiveScriptID())
	}
}

func TestShowPlaybackTriggersLinkedCue(t *testing.T) {
	seed := twoLights()
	seed.Cues = []LightingCue{{Name: "Spot", Settings: Settings{"L2": true}}}
	seed.Script = []ScriptItem{{ID: 7, Text: "Enter", LinkedCue: "Spot"}}
	fa := &fakeAssistant{audio: []byte{1, 2}}
	s, _ := newTestShow(t, seed, Options{Assistant: fa})

	audio, err := s.PlayScriptItem(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(audio) != 2 {
		t.Errorf("audio = %v", audio)
	}
	if !equipmentOn(s)["L2"] {
		t.Error("linked cue not applied")
	}
}

func TestShowPlaybackSpeechFailure(t *testing.T) {
	seed := twoLights()
	seed.Script = []ScriptItem{{ID: 7, Text: "Enter"}}
	fa := &fakeAssistant{speakErr: errors.New("quota")}
	s, _ := newTestShow(t, seed, Options{Assistant: fa})

	_, err := s.PlayScriptItem(context.Background(), 7)
	if !errors.Is(err, ErrExternalService) {
		t.Fatalf("err = %v, want ErrExternalService", err)
	}
	if s.ActiveScriptID() != 0 {
		t.Error("active item not cleared")
	}
}

func TestShowNotificationLifecycle(t *testing.T) {
	s, _ := newTestShow(t, twoLights(), Options{})
	var added, removed int
	s.Events().On(EventNotificationAdded, func(Event) { added++ })
	s.Events().On(EventNotificationRemoved, func(Event) { removed++ })

	s.SetStatus("L1", StatusOffline)
	s.SetStatus("L2", StatusOffline)
	list := s.Notifications()
	if len(list) != 2 {
		t.Fatalf("got %d notifications, want 2", len(list))
	}

	s.SetStatus("L1", StatusOnline)
	list = s.Notifications()
	if len(list) != 1 || list[0].EquipmentID != "L2" {
		t.Fatalf("list = %+v, want only L2", list)
	}

	if !s.DismissNotification(list[0].ID) {
		t.Fatal("dismiss failed")
	}
	if len(s.Notifications()) != 0 {
		t.Error("notification not dismissed")
	}
	if added != 2 || removed != 2 {
		t.Errorf("added=%d removed=%d, want 2/2", added, removed)
	}
}

func TestShowSimulateFailureAndReset(t *testing.T) {
	s, _ := newTestShow(t, twoLights(), Options{})

	id, _ := s.SimulateFailure()
	if id != "L1" {
		t.Fatalf("first failure = %q, want L1", id)
	}
	id, _ = s.SimulateFailure()
	if id != "L2" {
		t.Fatalf("second failure = %q, want L2", id)
	}
	if len(s.Notifications()) != 2 {
		t.Errorf("got %d notifications, want 2", len(s.Notifications()))
	}
	_, reset := s.SimulateFailure()
	if !reset {
		t.Fatal("expected reset")
	}
	if len(s.Notifications()) != 0 {
		t.Error("notifications not withdrawn on recovery")
	}
}

func TestShowLoopbackEcho(t *testing.T) {
	s, lb := newTestShow(t, twoLights(), Options{})
	var changed int
	s.Events().On(EventEquipmentChanged, func(Event) { changed++ })

	s.Toggle("L1", false)
	if changed != 1 {
		t.Errorf("changed = %d, want 1 (echo should be a no-op)", changed)
	}

	lb.Inject(StatusUpdate{ID: "L2", On: true})
	if !equipmentOn(s)["L2"] {
		t.Error("inbound update not applied")
	}

	s.Stop()
	lb.Inject(StatusUpdate{ID: "L2", On: false})
	if !equipmentOn(s)["L2"] {
		t.Error("update applied after Stop")
	}
}

func TestShowPersistsCollections(t *testing.T) {
	mp := &memPersister{}
	s, _ := newTestShow(t, twoLights(), Options{Persister: mp})

	s.SavePreset("One")
	s.AddScriptItem("hi")
	s.AddCue(LightingCue{Name: "C", Settings: Settings{"L1": true}})

	mp.mu.Lock()
	defer mp.mu.Unlock()
	if len(mp.presets) != 1 || len(mp.script) != 1 || len(mp.cues) != 1 {
		t.Errorf("persisted presets=%d script=%d cues=%d", len(mp.presets), len(mp.script), len(mp.cues))
	}
}

func TestShowAddCueFiltersUnknown(t *testing.T) {
	s, _ := newTestShow(t, twoLights(), Options{})

	c, err := s.AddCue(LightingCue{Name: " Wash ", Settings: Settings{"L1": true, "ghost": true}})
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "Wash" || !reflect.DeepEqual(c.Settings, Settings{"L1": true}) {
		t.Errorf("cue = %+v", c)
	}

	_, err = s.AddCue(LightingCue{Name: "Ghost", Settings: Settings{"ghost": true}})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestShowGenerateCue(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		fa := &fakeAssistant{cue: LightingCue{Name: "Dramatic", Settings: Settings{"L1": true, "L9": true}}}
		s, _ := newTestShow(t, twoLights(), Options{Assistant: fa})

		c, err := s.GenerateCue(context.Background(), "dramatic entrance")
		if err != nil {
			t.Fatal(err)
		}
		if !c.IsAIGenerated {
			t.Error("cue not flagged AI generated")
		}
		if len(s.Cues()) != 1 {
			t.Errorf("got %d cues, want 1", len(s.Cues()))
		}
	})

	t.Run("failure adds nothing", func(t *testing.T) {
		fa := &fakeAssistant{cueErr: errors.New("boom")}
		s, _ := newTestShow(t, twoLights(), Options{Assistant: fa})

		_, err := s.GenerateCue(context.Background(), "x")
		if !errors.Is(err, ErrExternalService) {
			t.Fatalf("err = %v", err)
		}
		if len(s.Cues()) != 0 {
			t.Error("failed generation added a cue")
		}
	})

	t.Run("no assistant", func(t *testing.T) {
		s, _ := newTestShow(t, twoLights(), Options{})
		if _, err := s.GenerateCue(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("err = %v, want ErrUnavailable", err)
		}
	})
}

func TestShowGenerateAnnouncement(t *testing.T) {
	t.Run("streams into new item", func(t *testing.T) {
		fa := &fakeAssistant{chunks: []string{"Hello ", "everyone"}}
		s, _ := newTestShow(t, twoLights(), Options{Assistant: fa})

		it, err := s.GenerateAnnouncement(context.Background(), "greet")
		if err != nil {
			t.Fatal(err)
		}
		if it.Text != "Hello everyone" {
			t.Errorf("text = %q", it.Text)
		}
		if len(s.Script()) != 1 {
			t.Errorf("script len = %d", len(s.Script()))
		}
	})

	t.Run("failure removes placeholder", func(t *testing.T) {
		fa := &fakeAssistant{chunks: []string{"Hel"}, streamErr: errors.New("cut")}
		s, _ := newTestShow(t, twoLights(), Options{Assistant: fa})

		if _, err := s.GenerateAnnouncement(context.Background(), "greet"); !errors.Is(err, ErrExternalService) {
			t.Fatalf("err = %v", err)
		}
		if len(s.Script()) != 0 {
			t.Errorf("placeholder left: %+v", s.Script())
		}
	})

	t.Run("placeholder not persisted while streaming", func(t *testing.T) {
		mp := &memPersister{}
		fa := &fakeAssistant{chunks: []string{"Doors open"}}
		s, _ := newTestShow(t, twoLights(), Options{Assistant: fa, Persister: mp})
		fa.streaming = func() {
			if len(s.Script()) != 1 {
				t.Errorf("placeholder not visible: %+v", s.Script())
			}
			mp.mu.Lock()
			defer mp.mu.Unlock()
			if len(mp.script) != 0 {
				t.Errorf("placeholder persisted: %+v", mp.script)
			}
		}

		if _, err := s.GenerateAnnouncement(context.Background(), "doors"); err != nil {
			t.Fatal(err)
		}
		mp.mu.Lock()
		defer mp.mu.Unlock()
		if len(mp.script) != 1 || mp.script[0].Text != "Doors open" {
			t.Errorf("persisted = %+v", mp.script)
		}
	})
}

func TestShowImproveAnnouncementRestoresOnFailure(t *testing.T) {
	seed := twoLights()
	seed.Script = []ScriptItem{{ID: 3, Text: "original"}}
	fa := &fakeAssistant{chunks: []string{"half"}, streamErr: errors.New("cut")}
	s, _ := newTestShow(t, seed, Options{Assistant: fa})

	it, err := s.ImproveAnnouncement(context.Background(), 3, "")
	if !errors.Is(err, ErrExternalService) {
		t.Fatalf("err = %v", err)
	}
	if it.Text != "original" || s.Script()[0].Text != "original" {
		t.Errorf("text not restored: %q", s.Script()[0].Text)
	}

	fa.streamErr = nil
	fa.chunks = []string{"better"}
	it, err = s.ImproveAnnouncement(context.Background(), 3, "")
	if err != nil {
		t.Fatal(err)
	}
	if it.Text != "better" {
		t.Errorf("text = %q", it.Text)
	}
}

func TestShowRegenerateScript(t *testing.T) {
	seed := twoLights()
	seed.Script = []ScriptItem{{ID: 1, Text: "keep"}}
	fa := &fakeAssistant{scriptErr: errors.New("down")}
	s, _ := newTestShow(t, seed, Options{Assistant: fa})

	if _, err := s.RegenerateScript(context.Background(), "gala"); !errors.Is(err, ErrExternalService) {
		t.Fatalf("err = %v", err)
	}
	if got := s.Script(); len(got) != 1 || got[0].Text != "keep" {
		t.Errorf("script changed on failure: %+v", got)
	}

	fa.scriptErr = nil
	fa.script = []string{"a", " ", "b"}
	items, err := s.RegenerateScript(context.Background(), "gala")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || len(s.Script()) != 2 {
		t.Errorf("items = %+v", items)
	}
}

func TestShowSuggestNextStatus(t *testing.T) {
	fa := &fakeAssistant{status: StatusLive}
	s, _ := newTestShow(t, twoLights(), Options{Assistant: fa})

	got, err := s.SuggestNextStatus(context.Background())
	if err != nil || got != StatusLive {
		t.Fatalf("got %q, %v", got, err)
	}
	if s.EventStatus() != StatusStartingSoon {
		t.Error("suggestion was applied")
	}

	fa.status = StatusTechnicalDifficulties
	if _, err := s.SuggestNextStatus(context.Background()); !errors.Is(err, ErrExternalService) {
		t.Errorf("err = %v, want ErrExternalService", err)
	}
}

func TestShowTroubleshoot(t *testing.T) {
	fa := &fakeAssistant{steps: "check "}
	s, _ := newTestShow(t, twoLights(), Options{Assistant: fa})

	got, err := s.Troubleshoot(context.Background(), "L1")
	if err != nil || got != "check Light One" {
		t.Errorf("got %q, %v", got, err)
	}
	if _, err := s.Troubleshoot(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestShowSetEventStatus(t *testing.T) {
	s, _ := newTestShow(t, twoLights(), Options{})
	var got []EventStatus
	s.Events().On(EventStatusChanged, func(e Event) { got = append(got, e.Data.(EventStatus)) })

	if err := s.SetEventStatus("Rehearsal"); !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v", err)
	}
	s.SetEventStatus(StatusLive)
	s.SetEventStatus(StatusLive)
	if len(got) != 1 || got[0] != StatusLive {
		t.Errorf("events = %v", got)
	}
}

func TestRunFailureSimulator(t *testing.T) {
	s, _ := newTestShow(t, twoLights(), Options{})
	offline := make(chan string, 16)
	s.Events().On(EventEquipmentOffline, func(e Event) {
		select {
		case offline <- e.Data.(EquipmentItem).ID:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunFailureSimulator(ctx, 5*time.Millisecond)
		close(done)
	}()

	select {
	case id := <-offline:
		if id != "L1" {
			t.Errorf("first failure = %q, want L1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("simulator never failed a device")
	}
	cancel()
	<-done
}

// gateDispatcher holds the first command until release is closed, then
// echoes every command back like the hardware would.
type gateDispatcher struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu       sync.Mutex
	sent     []Command
	handlers []func(StatusUpdate)
}

func newGateDispatcher() *gateDispatcher {
	return &gateDispatcher{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateDispatcher) SendCommand(cmd Command) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	g.mu.Lock()
	g.sent = append(g.sent, cmd)
	hs := append([]func(StatusUpdate){}, g.handlers...)
	g.mu.Unlock()
	for _, h := range hs {
		h(StatusUpdate{ID: cmd.ID, On: cmd.State})
	}
	return nil
}

func (g *gateDispatcher) OnStatusUpdate(fn func(StatusUpdate)) func() {
	g.mu.Lock()
	g.handlers = append(g.handlers, fn)
	g.mu.Unlock()
	return func() {}
}

func (g *gateDispatcher) Sent() []Command {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Command(nil), g.sent...)
}

func TestShowCommandsSentInMutationOrder(t *testing.T) {
	gd := newGateDispatcher()
	s := New(twoLights(), Options{Dispatcher: gd, Logger: newTestLogger()})
	s.Start()
	t.Cleanup(s.Stop)

	done := make(chan struct{})
	go func() {
		s.Toggle("L1", false) // on
		close(done)
	}()
	<-gd.entered

	s.Toggle("L1", true) // off, while the first command is still in flight
	if equipmentOn(s)["L1"] {
		t.Fatal("second toggle not applied")
	}

	close(gd.release)
	<-done

	want := []Command{{ID: "L1", State: true}, {ID: "L1", State: false}}
	if got := gd.Sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("sent = %+v, want %+v", got, want)
	}
	if equipmentOn(s)["L1"] {
		t.Error("older command's echo overwrote the latest toggle")
	}
}
