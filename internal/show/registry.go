package show

// Registry is the canonical state of all devices and the only writer of
// On and Status. It is not safe for concurrent use; Show serializes access.
type Registry struct {
	items []EquipmentItem
	index map[string]int
}

// NewRegistry creates a registry seeded with items. Items with an empty or
// duplicate ID are dropped; a missing status defaults to Online.
func NewRegistry(items []EquipmentItem) *Registry {
	r := &Registry{
		items: make([]EquipmentItem, 0, len(items)),
		index: make(map[string]int, len(items)),
	}
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if _, dup := r.index[it.ID]; dup {
			continue
		}
		if !it.Status.Valid() {
			it.Status = StatusOnline
		}
		if it.Status == StatusOffline {
			it.On = false
		}
		r.index[it.ID] = len(r.items)
		r.items = append(r.items, it)
	}
	return r
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	return len(r.items)
}

// Get returns a copy of the device with the given ID.
func (r *Registry) Get(id string) (EquipmentItem, bool) {
	i, ok := r.index[id]
	if !ok {
		return EquipmentItem{}, false
	}
	return r.items[i], true
}

// Snapshot returns a copy of all devices in registry order.
func (r *Registry) Snapshot() []EquipmentItem {
	out := make([]EquipmentItem, len(r.items))
	copy(out, r.items)
	return out
}

// Settings returns the current on state of every device.
func (r *Registry) Settings() Settings {
	s := make(Settings, len(r.items))
	for _, it := range r.items {
		s[it.ID] = it.On
	}
	return s
}

// Toggle sets the device to !expected regardless of its stored value, so an
// optimistic caller that already flipped its own copy stays consistent. It
// returns the command to emit. Unknown and Offline devices are a silent no-op.
func (r *Registry) Toggle(id string, expected bool) (Command, bool) {
	i, ok := r.index[id]
	if !ok {
		return Command{}, false
	}
	if r.items[i].Status == StatusOffline {
		return Command{}, false
	}
	r.items[i].On = !expected
	return Command{ID: id, State: !expected}, true
}

// ApplySettings assigns On for every id present in both settings and the
// registry. Offline devices are skipped. One command is returned per applied
// entry, in registry order.
func (r *Registry) ApplySettings(settings Settings) []Command {
	var cmds []Command
	for i := range r.items {
		v, ok := settings[r.items[i].ID]
		if !ok {
			continue
		}
		if r.items[i].Status == StatusOffline {
			continue
		}
		r.items[i].On = v
		cmds = append(cmds, Command{ID: r.items[i].ID, State: v})
	}
	return cmds
}

// SetStatus changes availability. Going Offline forces On to false.
// Returns false for unknown ids or invalid statuses.
func (r *Registry) SetStatus(id string, status Status) bool {
	if !status.Valid() {
		return false
	}
	i, ok := r.index[id]
	if !ok {
		return false
	}
	r.items[i].Status = status
	if status == StatusOffline {
		r.items[i].On = false
	}
	return true
}

// SimulateFailure marks one randomly picked Online device Offline. When no
// device is Online it resets every device to Online instead, leaving On
// untouched. pick(n) must return a value in [0, n).
func (r *Registry) SimulateFailure(pick func(n int) int) (failedID string, reset bool) {
	var online []int
	for i, it := range r.items {
		if it.Status == StatusOnline {
			online = append(online, i)
		}
	}
	if len(online) == 0 {
		for i := range r.items {
			r.items[i].Status = StatusOnline
		}
		return "", len(r.items) > 0
	}
	n := pick(len(online))
	if n < 0 || n >= len(online) {
		n = 0
	}
	i := online[n]
	r.items[i].Status = StatusOffline
	r.items[i].On = false
	return r.items[i].ID, false
}

// ApplyStatusUpdate folds a dispatcher confirmation into On. An update that
// would switch on an Offline device is ignored.
func (r *Registry) ApplyStatusUpdate(u StatusUpdate) bool {
	i, ok := r.index[u.ID]
	if !ok {
		return false
	}
	if r.items[i].Status == StatusOffline && u.On {
		return false
	}
	if r.items[i].On == u.On {
		return false
	}
	r.items[i].On = u.On
	return true
}
