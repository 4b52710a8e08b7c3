package trackpad

import (
	"sync"

	"go.uber.org/atomic"
)

// Session owns the slot table and click state of one connected device.
// Process calls are serialized, so a session can be fed from several
// goroutines.
type Session struct {
	mu        sync.Mutex
	tracker   *Tracker
	click     *ClickMachine
	processor *Processor

	frames      atomic.Uint64
	emptyFrames atomic.Uint64
	clicks      atomic.Uint64
	forceClicks atomic.Uint64
}

func NewSession(thresholds Thresholds) *Session {
	tracker := NewTracker()
	click := NewClickMachine(thresholds)
	return &Session{
		tracker:   tracker,
		click:     click,
		processor: NewProcessor(tracker, click),
	}
}

func (s *Session) Process(buf []byte) Result {
	s.mu.Lock()
	res := s.processor.Process(buf)
	s.mu.Unlock()

	s.frames.Inc()
	if res.Empty {
		s.emptyFrames.Inc()
	}
	switch res.Haptic {
	case HapticButtonDown:
		s.clicks.Inc()
	case HapticButtonForce:
		s.forceClicks.Inc()
	}
	return res
}

// SetThresholds applies new click thresholds from the next frame on.
func (s *Session) SetThresholds(t Thresholds) {
	s.mu.Lock()
	s.click.SetThresholds(t)
	s.mu.Unlock()
}

func (s *Session) State() ClickState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.click.State()
}

type SessionStats struct {
	Frames      uint64     `json:"frames"`
	EmptyFrames uint64     `json:"emptyFrames"`
	Clicks      uint64     `json:"clicks"`
	ForceClicks uint64     `json:"forceClicks"`
	Active      int        `json:"active"`
	State       ClickState `json:"state"`
}

func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	active := s.tracker.Active()
	state := s.click.State()
	s.mu.Unlock()
	return SessionStats{
		Frames:      s.frames.Load(),
		EmptyFrames: s.emptyFrames.Load(),
		Clicks:      s.clicks.Load(),
		ForceClicks: s.forceClicks.Load(),
		Active:      active,
		State:       state,
	}
}
