//go:build !no_automation

package automation

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"stage-command-center/internal/show"
)

func newTestEngine(t *testing.T) (*Engine, *show.Show) {
	t.Helper()
	sh := show.New(show.DefaultSeed(), show.Options{Logger: testLogger()})
	sh.Start()
	t.Cleanup(sh.Stop)

	mgr, err := NewManager(filepath.Join(t.TempDir(), "scripts"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	e := NewEngine(sh, mgr, testLogger(), SystemConfig{}, TelegramConfig{})
	return e, sh
}

func TestGoToLua(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tests := []struct {
		name string
		val  any
		want lua.LValueType
	}{
		{"nil", nil, lua.LTNil},
		{"bool", true, lua.LTBool},
		{"string", "hello", lua.LTString},
		{"int", 42, lua.LTNumber},
		{"int64", int64(99), lua.LTNumber},
		{"float64", 3.14, lua.LTNumber},
		{"map", map[string]any{"a": 1}, lua.LTTable},
		{"slice", []any{1, 2, 3}, lua.LTTable},
		{"unknown", struct{}{}, lua.LTString},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := goToLua(L, tt.val).Type(); got != tt.want {
				t.Errorf("goToLua(%v) type = %v, want %v", tt.val, got, tt.want)
			}
		})
	}

	tbl := goToLua(L, map[string]any{"on": true, "id": "light-01"}).(*lua.LTable)
	if tbl.RawGetString("on") != lua.LTrue || tbl.RawGetString("id").String() != "light-01" {
		t.Errorf("table fields not converted")
	}
}

func TestEventFields(t *testing.T) {
	tests := []struct {
		name  string
		event show.Event
		key   string
		want  any
	}{
		{"equipment", show.Event{Type: show.EventEquipmentOffline, Data: show.EquipmentItem{ID: "aud-01", Status: show.StatusOffline}}, "status", "Offline"},
		{"command", show.Event{Type: show.EventEquipmentCommand, Data: show.Command{ID: "light-01", State: true}}, "state", true},
		{"notification", show.Event{Type: show.EventNotificationAdded, Data: show.Notification{ID: "n1", EquipmentID: "aud-01"}}, "id", "aud-01"},
		{"cue triggered", show.Event{Type: show.EventCueTriggered, Data: "Blackout"}, "name", "Blackout"},
		{"theme added", show.Event{Type: show.EventThemeAdded, Data: show.VisualizerTheme{Key: "neon-tide", Name: "Neon Tide"}}, "key", "neon-tide"},
		{"script item", show.Event{Type: show.EventScriptPlaying, Data: show.ScriptItem{ID: 3, Text: "hi"}}, "id", "3"},
		{"event status", show.Event{Type: show.EventStatusChanged, Data: show.StatusLive}, "status", "Live"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eventFields(tt.event)[tt.key]; got != tt.want {
				t.Errorf("fields[%q] = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestMatchesHandler(t *testing.T) {
	offline := map[string]any{"id": "aud-01", "name": "Main Mixer"}
	tests := []struct {
		name    string
		handler luaEventHandler
		evType  string
		fields  map[string]any
		want    bool
	}{
		{"no filter", luaEventHandler{eventType: "equipment_offline"}, "equipment_offline", offline, true},
		{"wrong type", luaEventHandler{eventType: "equipment_online"}, "equipment_offline", offline, false},
		{"id match", luaEventHandler{eventType: "equipment_offline", id: "aud-01"}, "equipment_offline", offline, true},
		{"id mismatch", luaEventHandler{eventType: "equipment_offline", id: "aud-02"}, "equipment_offline", offline, false},
		{"name case-insensitive", luaEventHandler{eventType: "equipment_offline", name: "main mixer"}, "equipment_offline", offline, true},
		{"name missing", luaEventHandler{eventType: "event_status", name: "x"}, "event_status", map[string]any{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesHandler(tt.handler, tt.evType, tt.fields); got != tt.want {
				t.Errorf("matchesHandler() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunLuaCodeDrivesShow(t *testing.T) {
	e, sh := newTestEngine(t)

	res := e.RunLuaCode(`
		show.set("light-01", true)
		show.toggle("House Lights")
		local n = 0
		for _, it in ipairs(show.equipment()) do
			if it.on then n = n + 1 end
		end
		show.log("on:" .. n)
	`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}

	if it, _ := sh.Device("light-01"); !it.On {
		t.Error("light-01 not switched on")
	}
	if it, _ := sh.Device("light-02"); it.On {
		t.Error("house lights not toggled off")
	}
	if len(res.Logs) != 1 || res.Logs[0] != "on:4" {
		t.Errorf("logs = %q", res.Logs)
	}
}

func TestRunLuaCodeInvokesHandlers(t *testing.T) {
	e, sh := newTestEngine(t)

	res := e.RunLuaCode(`
		show.on("cue_triggered", {name="Spotlight"}, function(ev)
			show.trigger_cue(ev.name)
			show.log("fired " .. ev.name)
		end)
	`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	if len(res.Logs) != 1 || res.Logs[0] != "fired Spotlight" {
		t.Errorf("logs = %q", res.Logs)
	}
	if it, _ := sh.Device("light-01"); !it.On {
		t.Error("Spotlight cue not applied")
	}
}

func TestRunLuaCodeErrors(t *testing.T) {
	e, _ := newTestEngine(t)

	tests := []struct {
		name string
		code string
		want string
	}{
		{"runtime error", `error("boom")`, "boom"},
		{"sandboxed os", `os.exit(1)`, "exit"},
		{"bad status", `show.set_status("Party")`, "Party"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.RunLuaCode(tt.code)
			if res.OK || !strings.Contains(res.Error, tt.want) {
				t.Errorf("result = %+v, want error containing %q", res, tt.want)
			}
		})
	}
}

func TestRunScriptNotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	if res := e.RunScript("missing"); res.OK {
		t.Error("missing script ran")
	}
}

func TestEngineReactsToShowEvents(t *testing.T) {
	e, sh := newTestEngine(t)

	_, err := e.manager.Save(&Script{
		ID:   "mic_watch",
		Meta: ScriptMeta{Name: "Mic Watch", Enabled: true},
		LuaCode: `show.on("equipment_offline", {id="aud-01"}, function(ev)
	show.set_status("Technical Difficulties")
end)`,
	})
	if err != nil {
		t.Fatal(err)
	}
	e.manager.Save(&Script{ID: "idle", Meta: ScriptMeta{Name: "Idle"}, LuaCode: `error("never loaded")`})

	e.Start()
	defer e.Stop()

	if !e.Running("mic_watch") || e.Running("idle") {
		t.Fatal("only enabled scripts should run")
	}

	status := make(chan show.EventStatus, 1)
	sh.Events().On(show.EventStatusChanged, func(ev show.Event) {
		status <- ev.Data.(show.EventStatus)
	})

	// A different device going offline does not match the filter.
	if err := sh.SetStatus("aud-02", show.StatusOffline); err != nil {
		t.Fatal(err)
	}
	if err := sh.SetStatus("aud-01", show.StatusOffline); err != nil {
		t.Fatal(err)
	}

	select {
	case st := <-status:
		if st != show.StatusTechnicalDifficulties {
			t.Errorf("status = %q", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("script did not react to equipment_offline")
	}
}

func TestEngineReloadAndStop(t *testing.T) {
	e, _ := newTestEngine(t)
	saved, err := e.manager.Save(&Script{Meta: ScriptMeta{Name: "Loop", Enabled: true}, LuaCode: `show.log("x")`})
	if err != nil {
		t.Fatal(err)
	}
	e.Start()
	defer e.Stop()

	if !e.Running(saved.ID) {
		t.Fatal("script not started")
	}

	saved.Meta.Enabled = false
	e.manager.Save(saved)
	if err := e.ReloadScript(saved.ID); err != nil {
		t.Fatal(err)
	}
	if e.Running(saved.ID) {
		t.Error("disabled script still running after reload")
	}

	saved.Meta.Enabled = true
	e.manager.Save(saved)
	e.ReloadScript(saved.ID)
	e.StopScript(saved.ID)
	if e.Running(saved.ID) {
		t.Error("script running after StopScript")
	}
}
