// Session state machine of the photo booth
package session

import (
	"fmt"

	"photobooth/internal/delivery"
	"photobooth/internal/variants"
)

// State is the screen the booth is showing
type State int

const (
	StateCapture State = iota
	StateResultPreview
	StateQrCode
)

func (s State) String() string {
	switch s {
	case StateCapture:
		return "capture"
	case StateResultPreview:
		return "result_preview"
	case StateQrCode:
		return "qr_code"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind is a signal arriving at the coordinator
type EventKind int

const (
	// EventTrigger is an already gated button press
	EventTrigger EventKind = iota
	// EventCountdownElapsed marks one countdown unit; Remaining reaches 0 last
	EventCountdownElapsed
	// EventCaptureDone is sent once the camera wrote the capture file
	EventCaptureDone
	// EventDeliveryReady carries the finished variants and their package
	EventDeliveryReady
	// EventSessionFailed carries the error that ended the session
	EventSessionFailed
)

func (k EventKind) String() string {
	switch k {
	case EventTrigger:
		return "trigger"
	case EventCountdownElapsed:
		return "countdown_elapsed"
	case EventCaptureDone:
		return "capture_done"
	case EventDeliveryReady:
		return "delivery_ready"
	case EventSessionFailed:
		return "session_failed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one message for the coordinator
type Event struct {
	Kind      EventKind
	Remaining int
	Batch     *variants.Batch
	Package   *delivery.Package
	Err       error
}

// Next is the transition function. Events that do not move the machine
// leave the state unchanged; a trigger in ResultPreview never returns to
// Capture directly.
func Next(s State, e EventKind) State {
	switch e {
	case EventSessionFailed:
		return StateCapture
	case EventDeliveryReady:
		if s == StateCapture {
			return StateResultPreview
		}
		return s
	case EventTrigger:
		switch s {
		case StateResultPreview:
			return StateQrCode
		case StateQrCode:
			return StateCapture
		}
	}
	return s
}
