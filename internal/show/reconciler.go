package show

import (
	"fmt"
	"slices"
	"time"
)

// Reconciler derives offline notifications by diffing consecutive equipment
// snapshots. It never fails; a malformed snapshot just yields no notifications.
type Reconciler struct {
	prev  map[string]EquipmentItem
	list  []Notification
	now   func() time.Time
	taken map[string]bool
}

// NewReconciler creates a reconciler whose baseline is initial. now may be nil.
func NewReconciler(initial []EquipmentItem, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	rc := &Reconciler{now: now, taken: make(map[string]bool)}
	rc.prev = indexByID(initial)
	return rc
}

func indexByID(items []EquipmentItem) map[string]EquipmentItem {
	m := make(map[string]EquipmentItem, len(items))
	for _, it := range items {
		m[it.ID] = it
	}
	return m
}

// Observe compares next against the previous snapshot. Devices that went
// Online to Offline get a new notification at the front of the list; devices
// that came back Online lose all of theirs. next becomes the new baseline.
func (rc *Reconciler) Observe(next []EquipmentItem) (added, removed []Notification) {
	wentOffline := make(map[string]bool)
	cameOnline := make(map[string]bool)
	for _, it := range next {
		p, ok := rc.prev[it.ID]
		if !ok {
			continue
		}
		switch {
		case p.Status == StatusOnline && it.Status == StatusOffline:
			wentOffline[it.ID] = true
			added = append(added, rc.newNotification(it))
		case p.Status == StatusOffline && it.Status == StatusOnline:
			cameOnline[it.ID] = true
		}
	}
	rc.prev = indexByID(next)

	if len(added) == 0 && len(cameOnline) == 0 {
		return nil, nil
	}

	kept := rc.list[:0:0]
	for _, n := range rc.list {
		if wentOffline[n.EquipmentID] || cameOnline[n.EquipmentID] {
			removed = append(removed, n)
			delete(rc.taken, n.ID)
			continue
		}
		kept = append(kept, n)
	}
	rc.list = append(slices.Clone(added), kept...)
	return added, removed
}

func (rc *Reconciler) newNotification(it EquipmentItem) Notification {
	at := rc.now()
	ms := at.UnixMilli()
	id := fmt.Sprintf("%s-%d", it.ID, ms)
	for rc.taken[id] {
		ms++
		id = fmt.Sprintf("%s-%d", it.ID, ms)
	}
	rc.taken[id] = true
	name := it.Name
	if name == "" {
		name = it.ID
	}
	return Notification{
		ID:          id,
		EquipmentID: it.ID,
		Message:     name + " has gone offline!",
		CreatedAt:   at,
	}
}

// Dismiss removes a single notification by id.
func (rc *Reconciler) Dismiss(id string) bool {
	i := slices.IndexFunc(rc.list, func(n Notification) bool { return n.ID == id })
	if i < 0 {
		return false
	}
	rc.list = slices.Delete(rc.list, i, i+1)
	delete(rc.taken, id)
	return true
}

// Notifications returns the current list, newest first.
func (rc *Reconciler) Notifications() []Notification {
	return slices.Clone(rc.list)
}
