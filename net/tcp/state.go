package tcp

import "fmt"

type State uint8

const (
	StateAccepted State = iota
	StateReading
	StateEnding
	StateClosing
	StateClosed
)

var stateNames = [...]string{
	StateAccepted: "accepted",
	StateReading:  "reading",
	StateEnding:   "ending",
	StateClosing:  "closing",
	StateClosed:   "closed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// open reports whether writes and registrations are still accepted.
func (s State) open() bool {
	return s < StateEnding
}

// err is the error returned for operations rejected in state s.
func (s State) err() error {
	switch {
	case s.open():
		return nil
	case s == StateEnding:
		return ErrConnEnding
	default:
		return ErrConnClosed
	}
}
