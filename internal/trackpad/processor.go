package trackpad

import (
	"fmt"
	"strings"
)

// Result is everything produced by one frame.
type Result struct {
	Empty bool `json:"empty" yaml:"empty"`
	// Primary is the first contact of the frame, used for single touch
	// emulation.
	Primary     *ContactRecord `json:"primary,omitempty" yaml:"primary,omitempty"`
	Contacts    []ContactEvent `json:"contacts" yaml:"contacts"`
	Active      int            `json:"active" yaml:"active"`
	MaxPressure uint8          `json:"maxPressure" yaml:"maxPressure"`
	Buttons     []ButtonEvent  `json:"buttons,omitempty" yaml:"buttons,omitempty"`
	Haptic      HapticCommand  `json:"haptic" yaml:"haptic"`
	State       ClickState     `json:"state" yaml:"state"`
}

func (r Result) String() string {
	var parts []string
	for _, c := range r.Contacts {
		parts = append(parts, c.String())
	}
	for _, b := range r.Buttons {
		parts = append(parts, b.String())
	}
	if r.Haptic != HapticNone {
		parts = append(parts, "haptic="+r.Haptic.String())
	}
	return fmt.Sprintf("[%s] state=%s", strings.Join(parts, ", "), r.State)
}

// Processor runs decode, slot tracking and click detection for one frame.
// It keeps no state of its own.
type Processor struct {
	tracker *Tracker
	click   *ClickMachine
}

func NewProcessor(tracker *Tracker, click *ClickMachine) *Processor {
	return &Processor{
		tracker: tracker,
		click:   click,
	}
}

func (p *Processor) Process(buf []byte) Result {
	frame := Decode(buf)
	events, maxPressure := p.tracker.Reconcile(frame.Contacts, frame.Empty)
	click := p.click.Advance(maxPressure)

	res := Result{
		Empty:       frame.Empty,
		Contacts:    events,
		Active:      p.tracker.Active(),
		MaxPressure: maxPressure,
		Buttons:     click.Buttons,
		Haptic:      click.Haptic,
		State:       click.State,
	}
	if len(frame.Contacts) > 0 {
		primary := frame.Contacts[0]
		res.Primary = &primary
	}
	return res
}
