// Package uinput mirrors processed trackpad frames onto a virtual multitouch
// device, so the desktop input stack sees a regular touchpad.
package uinput

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/kenshaw/evdev"
	"github.com/lunixbochs/struc"
	"github.com/neuroplastio/neio-trackpad/internal/trackpad"
)

func abs(code uint16, value int32) evdev.Event {
	return evdev.Event{Type: evdev.EventAbsolute, Code: code, Value: value}
}

func key(code uint16, pressed bool) evdev.Event {
	var v int32
	if pressed {
		v = 1
	}
	return evdev.Event{Type: evdev.EventKey, Code: code, Value: v}
}

// Events translates one frame into the evdev events of the virtual device,
// terminated by SYN_REPORT.
func Events(res trackpad.Result) []evdev.Event {
	events := make([]evdev.Event, 0, len(res.Contacts)*8+len(toolKeys)+8)
	for _, c := range res.Contacts {
		events = append(events, abs(absMTSlot, int32(c.Slot)))
		switch c.Type {
		case trackpad.ContactEnded:
			events = append(events, abs(absMTTrackingID, -1))
			continue
		case trackpad.ContactBegan:
			events = append(events, abs(absMTTrackingID, int32(c.Contact.ID)))
		}
		events = append(events,
			abs(absMTPressure, int32(c.Contact.Pressure)),
			abs(absMTTouchMajor, c.Contact.TouchMajor),
			abs(absMTTouchMinor, c.Contact.TouchMinor),
			abs(absMTOrientation, c.Contact.Orientation),
			abs(absMTPositionX, c.Contact.X),
			abs(absMTPositionY, c.Contact.Y),
		)
	}

	if p := res.Primary; p != nil {
		events = append(events,
			abs(absX, p.X),
			abs(absY, p.Y),
			abs(absPressure, int32(p.Pressure)+trackpad.SinglePressureOffset),
			abs(absToolWidth, int32(p.Size)),
		)
	} else if res.Active == 0 {
		events = append(events, abs(absPressure, 0))
	}

	events = append(events, key(btnTouch, res.Active > 0))
	for i, code := range toolKeys {
		fingers := i + 1
		if fingers == len(toolKeys) {
			events = append(events, key(code, res.Active >= fingers))
			continue
		}
		events = append(events, key(code, res.Active == fingers))
	}

	for _, b := range res.Buttons {
		switch b.Button {
		case trackpad.ButtonLeft:
			events = append(events, key(btnLeft, b.Pressed))
		case trackpad.ButtonMiddle:
			events = append(events, key(btnMiddle, b.Pressed))
		}
	}
	return append(events, evdev.Event{Type: evSyn, Code: synReport})
}

// inputEvent is struct input_event on 64-bit Linux. The kernel fills in the
// timestamp of events written to uinput.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const inputEventSize = 24

// Marshal encodes events in the layout read by the uinput device node.
func Marshal(events []evdev.Event) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(events) * inputEventSize)
	for _, e := range events {
		ev := inputEvent{Type: uint16(e.Type), Code: e.Code, Value: e.Value}
		err := struc.PackWithOptions(&buf, &ev, &struc.Options{Order: binary.LittleEndian})
		if err != nil {
			return nil, fmt.Errorf("failed to pack event: %w", err)
		}
	}
	return buf.Bytes(), nil
}
