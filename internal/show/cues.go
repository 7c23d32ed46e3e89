package show

// CueStore holds lighting cues. It is a separate namespace from presets and
// has no delete or update.
type CueStore struct {
	cues []LightingCue
}

// NewCueStore creates a store from seed cues.
func NewCueStore(seed []LightingCue) *CueStore {
	cs := &CueStore{}
	for _, c := range seed {
		if c.Name == "" {
			continue
		}
		cs.cues = append(cs.cues, cloneCue(c))
	}
	return cs
}

// Add appends cue. Names are not deduplicated: shadowed reports whether an
// existing cue had the same name, in which case the new one wins on lookup.
func (cs *CueStore) Add(cue LightingCue) (shadowed bool) {
	_, shadowed = cs.Get(cue.Name)
	cs.cues = append(cs.cues, cloneCue(cue))
	return shadowed
}

// Get returns the most recently added cue with the given name.
func (cs *CueStore) Get(name string) (LightingCue, bool) {
	for i := len(cs.cues) - 1; i >= 0; i-- {
		if cs.cues[i].Name == name {
			return cloneCue(cs.cues[i]), true
		}
	}
	return LightingCue{}, false
}

// List returns copies of all cues in insertion order.
func (cs *CueStore) List() []LightingCue {
	out := make([]LightingCue, len(cs.cues))
	for i, c := range cs.cues {
		out[i] = cloneCue(c)
	}
	return out
}
