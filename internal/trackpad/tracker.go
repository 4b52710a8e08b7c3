package trackpad

import "fmt"

// MaxContacts is the number of slots the device can track at once.
const MaxContacts = 16

type ContactEventType uint8

const (
	ContactBegan ContactEventType = iota
	ContactUpdated
	ContactEnded
)

func (t ContactEventType) String() string {
	switch t {
	case ContactBegan:
		return "began"
	case ContactUpdated:
		return "updated"
	case ContactEnded:
		return "ended"
	}
	return fmt.Sprintf("ContactEventType(%d)", uint8(t))
}

func (t ContactEventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ContactEventType) UnmarshalText(text []byte) error {
	v, err := parseText("contact event type", text, ContactBegan, ContactUpdated, ContactEnded)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ContactEvent reports a change to one slot. Contact is the zero value for
// ContactEnded.
type ContactEvent struct {
	Type    ContactEventType `json:"type" yaml:"type"`
	Slot    int              `json:"slot" yaml:"slot"`
	Contact ContactRecord    `json:"contact" yaml:"contact"`
}

func (e ContactEvent) String() string {
	if e.Type == ContactEnded {
		return fmt.Sprintf("%s[%d]", e.Type, e.Slot)
	}
	return fmt.Sprintf("%s[%d] %s", e.Type, e.Slot, e.Contact)
}

type slot struct {
	id       uint8
	occupied bool
}

// Tracker maps the transient contact ids reported by the hardware onto
// stable slots. Not safe for concurrent use.
type Tracker struct {
	slots [MaxContacts]slot
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Reconcile applies one frame to the slot table. It returns the slot changes
// in the order they happened and the highest pressure among records,
// including records that did not get a slot.
func (t *Tracker) Reconcile(records []ContactRecord, empty bool) ([]ContactEvent, uint8) {
	if empty {
		return t.releaseAll(), 0
	}

	var (
		events      = make([]ContactEvent, 0, len(records)+MaxContacts)
		present     [256]bool
		maxPressure uint8
	)
	for _, rec := range records {
		if rec.Pressure > maxPressure {
			maxPressure = rec.Pressure
		}
		present[rec.ID] = true

		if idx, ok := t.find(rec.ID); ok {
			events = append(events, ContactEvent{Type: ContactUpdated, Slot: idx, Contact: rec})
			continue
		}
		idx, ok := t.free()
		if !ok {
			continue
		}
		t.slots[idx] = slot{id: rec.ID, occupied: true}
		events = append(events, ContactEvent{Type: ContactBegan, Slot: idx, Contact: rec})
	}

	for idx := range t.slots {
		s := t.slots[idx]
		if s.occupied && !present[s.id] {
			t.slots[idx] = slot{}
			events = append(events, ContactEvent{Type: ContactEnded, Slot: idx})
		}
	}
	return events, maxPressure
}

func (t *Tracker) releaseAll() []ContactEvent {
	var events []ContactEvent
	for idx := range t.slots {
		if !t.slots[idx].occupied {
			continue
		}
		t.slots[idx] = slot{}
		events = append(events, ContactEvent{Type: ContactEnded, Slot: idx})
	}
	return events
}

func (t *Tracker) find(id uint8) (int, bool) {
	for idx, s := range t.slots {
		if s.occupied && s.id == id {
			return idx, true
		}
	}
	return -1, false
}

func (t *Tracker) free() (int, bool) {
	for idx, s := range t.slots {
		if !s.occupied {
			return idx, true
		}
	}
	return -1, false
}

// Slot returns the transient id held by slot idx.
func (t *Tracker) Slot(idx int) (uint8, bool) {
	if idx < 0 || idx >= MaxContacts {
		return 0, false
	}
	s := t.slots[idx]
	return s.id, s.occupied
}

// Active returns the number of occupied slots.
func (t *Tracker) Active() int {
	n := 0
	for _, s := range t.slots {
		if s.occupied {
			n++
		}
	}
	return n
}
