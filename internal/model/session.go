package model

import (
	"fmt"
	"time"
)

// SessionState enumerates the exam session lifecycle. Transitions are
// validated against a fixed table; anything else is rejected rather than
// tolerated via ad hoc guard flags.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateAssigning SessionState = "assigning"
	SessionStateActive    SessionState = "active"
	SessionStateClosing   SessionState = "closing"
)

// validTransitions is the session state machine:
// idle → assigning → active → closing → idle.
var validTransitions = map[SessionState][]SessionState{
	SessionStateIdle:      {SessionStateAssigning},
	SessionStateAssigning: {SessionStateActive, SessionStateIdle},
	SessionStateActive:    {SessionStateClosing},
	SessionStateClosing:   {SessionStateIdle},
}

// CanTransition reports whether moving from s to next is legal.
func (s SessionState) CanTransition(next SessionState) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next or an error when the move is illegal.
func (s SessionState) Transition(next SessionState) (SessionState, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("illegal session transition %s → %s", s, next)
	}
	return next, nil
}

// SessionSnapshot is the durable record of the single active exam session
// for an annotator. EndsAt is fixed at creation and never extended.
type SessionSnapshot struct {
	AnnotatorID int          `json:"annotator_id"`
	ExternalID  string       `json:"external_id"`
	ExamCode    string       `json:"exam_code"`
	ExamID      int          `json:"exam_id"`
	Task        ImageTask    `json:"task"`
	StartedAt   time.Time    `json:"started_at"`
	EndsAt      time.Time    `json:"ends_at"`
	State       SessionState `json:"state"`
}

// Expired reports whether the session deadline has passed.
func (s *SessionSnapshot) Expired(now time.Time) bool {
	return !now.Before(s.EndsAt)
}

// Remaining returns the time left before the deadline, clamped at zero.
func (s *SessionSnapshot) Remaining(now time.Time) time.Duration {
	rem := s.EndsAt.Sub(now)
	if rem < 0 {
		return 0
	}
	return rem
}

// Screen identifies which client screen the shell should render.
type Screen string

const (
	ScreenDashboard Screen = "dashboard"
	ScreenExam      Screen = "exam"
)

// Shell is the routing decision returned to an authenticated annotator on
// load: which screen to show and, for the exam screen, the resumable
// session with its remaining time.
type Shell struct {
	Screen           Screen           `json:"screen"`
	Session          *SessionSnapshot `json:"session,omitempty"`
	RemainingSeconds int              `json:"remaining_seconds,omitempty"`
}
