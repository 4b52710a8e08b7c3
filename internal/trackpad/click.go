package trackpad

import (
	"errors"
	"fmt"
)

const (
	// DefaultClickThreshold is the pressure a click must exceed.
	DefaultClickThreshold uint8 = 50
	// DefaultForceThreshold is the pressure at which a click turns into a
	// force click.
	DefaultForceThreshold uint8 = 140
)

type ClickState uint8

const (
	Idle ClickState = iota
	Pressed
	Forced
	WaitingRelease
)

func (s ClickState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pressed:
		return "pressed"
	case Forced:
		return "forced"
	case WaitingRelease:
		return "waitingRelease"
	}
	return fmt.Sprintf("ClickState(%d)", uint8(s))
}

func (s ClickState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ClickState) UnmarshalText(text []byte) error {
	v, err := parseText("click state", text, Idle, Pressed, Forced, WaitingRelease)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

type Button uint8

const (
	// ButtonLeft is the primary click.
	ButtonLeft Button = iota
	// ButtonMiddle is reported while a force click is held.
	ButtonMiddle
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonMiddle:
		return "middle"
	}
	return fmt.Sprintf("Button(%d)", uint8(b))
}

func (b Button) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Button) UnmarshalText(text []byte) error {
	v, err := parseText("button", text, ButtonLeft, ButtonMiddle)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

type ButtonEvent struct {
	Button  Button `json:"button" yaml:"button"`
	Pressed bool   `json:"pressed" yaml:"pressed"`
}

func (e ButtonEvent) String() string {
	if e.Pressed {
		return "+" + e.Button.String()
	}
	return "-" + e.Button.String()
}

// ClickResult is the outcome of a single Advance call.
type ClickResult struct {
	State   ClickState
	Buttons []ButtonEvent
	Haptic  HapticCommand
}

type Thresholds struct {
	Click uint8
	Force uint8
}

func DefaultThresholds() Thresholds {
	return Thresholds{Click: DefaultClickThreshold, Force: DefaultForceThreshold}
}

var ErrInvalidThresholds = errors.New("click threshold must be lower than force threshold")

func (t Thresholds) Validate() error {
	if t.Click >= t.Force {
		return fmt.Errorf("%w: %d >= %d", ErrInvalidThresholds, t.Click, t.Force)
	}
	return nil
}

// ClickMachine turns the per-frame maximum pressure into click transitions.
// Not safe for concurrent use.
type ClickMachine struct {
	state      ClickState
	thresholds Thresholds
}

func NewClickMachine(thresholds Thresholds) *ClickMachine {
	return &ClickMachine{thresholds: thresholds}
}

func (m *ClickMachine) State() ClickState {
	return m.state
}

// SetThresholds replaces the thresholds without touching the current state.
func (m *ClickMachine) SetThresholds(t Thresholds) {
	m.thresholds = t
}

func (m *ClickMachine) Thresholds() Thresholds {
	return m.thresholds
}

// Advance moves the machine by one frame. At most one row of the transition
// table applies per call; pressures that match no row leave the state as is.
// Forced has no exit below the click threshold, it waits for a frame inside
// the click band.
func (m *ClickMachine) Advance(pressure uint8) ClickResult {
	low, high := m.thresholds.Click, m.thresholds.Force
	inBand := pressure > low && pressure < high

	switch {
	case m.state == Idle && inBand:
		m.state = Pressed
		return m.result(HapticButtonDown, ButtonEvent{ButtonLeft, true})
	case m.state == Pressed && pressure >= high:
		m.state = Forced
		return m.result(HapticButtonForce, ButtonEvent{ButtonLeft, false}, ButtonEvent{ButtonMiddle, true})
	case m.state == Forced && inBand:
		m.state = WaitingRelease
		return m.result(HapticButtonUp, ButtonEvent{ButtonLeft, false}, ButtonEvent{ButtonMiddle, false})
	case m.state == Pressed && pressure <= low:
		m.state = Idle
		return m.result(HapticButtonUp, ButtonEvent{ButtonLeft, false})
	case m.state == WaitingRelease && pressure <= low:
		m.state = Idle
	}
	return ClickResult{State: m.state}
}

func (m *ClickMachine) result(haptic HapticCommand, buttons ...ButtonEvent) ClickResult {
	return ClickResult{
		State:   m.state,
		Buttons: buttons,
		Haptic:  haptic,
	}
}
