package show

import (
	"testing"
	"time"
)

func TestScriptIDsMonotonic(t *testing.T) {
	now := time.UnixMilli(100)
	s := NewScript(nil, func() time.Time { return now })

	a := s.Add("one")
	b := s.Add("two") // same millisecond
	now = time.UnixMilli(50)
	c := s.Add("three") // clock went backwards

	if !(a.ID < b.ID && b.ID < c.ID) {
		t.Errorf("ids not increasing: %d %d %d", a.ID, b.ID, c.ID)
	}
}

func TestScriptSeedIDs(t *testing.T) {
	s := NewScript([]ScriptItem{{ID: 5, Text: "a"}, {ID: 5, Text: "b"}, {Text: "c"}}, func() time.Time { return time.UnixMilli(1) })
	items := s.List()
	seen := map[int64]bool{}
	for _, it := range items {
		if it.ID <= 0 || seen[it.ID] {
			t.Errorf("bad id %d in %+v", it.ID, items)
		}
		seen[it.ID] = true
	}
	if items[0].ID != 5 {
		t.Errorf("first seed id changed to %d", items[0].ID)
	}
}

func TestScriptEdit(t *testing.T) {
	s := NewScript(nil, nil)
	it := s.Add("hello")

	if !s.AppendText(it.ID, " world") {
		t.Fatal("append failed")
	}
	if !s.LinkCue(it.ID, "Nonexistent") {
		t.Fatal("link failed")
	}
	got, _ := s.Get(it.ID)
	if got.Text != "hello world" || got.LinkedCue != "Nonexistent" {
		t.Errorf("item = %+v", got)
	}
	s.LinkCue(it.ID, "")
	got, _ = s.Get(it.ID)
	if got.LinkedCue != "" {
		t.Error("empty cue did not unlink")
	}

	if s.SetText(999, "x") || s.Delete(999) {
		t.Error("edit of unknown id succeeded")
	}
	if !s.Delete(it.ID) || len(s.List()) != 0 {
		t.Error("delete failed")
	}
}

func TestScriptReplace(t *testing.T) {
	s := NewScript([]ScriptItem{{ID: 1, Text: "old"}}, nil)
	items := s.Replace([]string{"a", "b"})
	if len(items) != 2 || items[0].Text != "a" || items[1].Text != "b" {
		t.Fatalf("items = %+v", items)
	}
	if items[0].ID <= 1 {
		t.Errorf("replacement reused id %d", items[0].ID)
	}
}

func TestCueStoreLastWins(t *testing.T) {
	cs := NewCueStore([]LightingCue{{Name: "Wash", Settings: Settings{"A": true}}})
	if _, ok := cs.Get("Missing"); ok {
		t.Error("found missing cue")
	}
	shadowed := cs.Add(LightingCue{Name: "Wash", Settings: Settings{"A": false}})
	if !shadowed {
		t.Error("collision not reported")
	}
	c, _ := cs.Get("Wash")
	if c.Settings["A"] {
		t.Error("older cue won lookup")
	}
	if len(cs.List()) != 2 {
		t.Errorf("got %d cues, want 2", len(cs.List()))
	}
}
