package show

import (
	"slices"
	"time"
)

// Script is the ordered announcement list. Item IDs come from the clock in
// milliseconds and are bumped past the last issued ID so they stay unique and
// strictly increasing.
type Script struct {
	items  []ScriptItem
	lastID int64
	now    func() time.Time
}

// NewScript creates a script from seed items. Seed IDs are kept when
// positive and unique; others are reassigned.
func NewScript(seed []ScriptItem, now func() time.Time) *Script {
	if now == nil {
		now = time.Now
	}
	s := &Script{now: now}
	seen := make(map[int64]bool, len(seed))
	for _, it := range seed {
		if it.ID > s.lastID {
			s.lastID = it.ID
		}
	}
	for _, it := range seed {
		if it.ID <= 0 || seen[it.ID] {
			it.ID = s.nextID()
		}
		seen[it.ID] = true
		s.items = append(s.items, it)
	}
	return s
}

func (s *Script) nextID() int64 {
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

func (s *Script) indexOf(id int64) int {
	return slices.IndexFunc(s.items, func(it ScriptItem) bool { return it.ID == id })
}

// List returns a copy of all items in order.
func (s *Script) List() []ScriptItem {
	return slices.Clone(s.items)
}

// Get returns the item with the given id.
func (s *Script) Get(id int64) (ScriptItem, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return ScriptItem{}, false
	}
	return s.items[i], true
}

// Add appends an item and returns it with its new ID.
func (s *Script) Add(text string) ScriptItem {
	it := ScriptItem{ID: s.nextID(), Text: text}
	s.items = append(s.items, it)
	return it
}

// Delete removes an item. Returns false if absent.
func (s *Script) Delete(id int64) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true
}

// SetText replaces an item's text.
func (s *Script) SetText(id int64, text string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items[i].Text = text
	return true
}

// AppendText appends a streamed chunk to an item's text.
func (s *Script) AppendText(id int64, chunk string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items[i].Text += chunk
	return true
}

// LinkCue sets the cue an item triggers on playback. An empty name unlinks.
// The cue is not required to exist.
func (s *Script) LinkCue(id int64, cue string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items[i].LinkedCue = cue
	return true
}

// Replace discards all items and creates one per text, in order.
func (s *Script) Replace(texts []string) []ScriptItem {
	items := make([]ScriptItem, 0, len(texts))
	for _, t := range texts {
		items = append(items, ScriptItem{ID: s.nextID(), Text: t})
	}
	s.items = items
	return slices.Clone(items)
}
