package workflow

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for events the current state does not accept
var ErrInvalidTransition = errors.New("invalid transition")

// State is a step of the capture workflow
type State int

const (
	StateScanning State = iota
	StateResolving
	StateResolved
	StateUnresolved
	StatePhotoCapture
	StateAnalyzing
	StateConfirming
	StateClosed
)

var stateNames = map[State]string{
	StateScanning:     "scanning",
	StateResolving:    "resolving",
	StateResolved:     "resolved",
	StateUnresolved:   "unresolved",
	StatePhotoCapture: "photo_capture",
	StateAnalyzing:    "analyzing",
	StateConfirming:   "confirming",
	StateClosed:       "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// EventKind is an input to the state machine
type EventKind int

const (
	EventCodeDecoded EventKind = iota
	EventManualCode
	EventLookupHit
	EventLookupMiss
	EventLookupLimit
	EventRequestPhoto
	EventPhotoCaptured
	EventRequestAnalysis
	EventAnalysisSuccess
	EventAnalysisLimit
	EventAnalysisError
	EventConfirm
	EventCancel
)

var eventNames = map[EventKind]string{
	EventCodeDecoded:     "code_decoded",
	EventManualCode:      "manual_code",
	EventLookupHit:       "lookup_hit",
	EventLookupMiss:      "lookup_miss",
	EventLookupLimit:     "lookup_limit",
	EventRequestPhoto:    "request_photo",
	EventPhotoCaptured:   "photo_captured",
	EventRequestAnalysis: "request_analysis",
	EventAnalysisSuccess: "analysis_success",
	EventAnalysisLimit:   "analysis_limit",
	EventAnalysisError:   "analysis_error",
	EventConfirm:         "confirm",
	EventCancel:          "cancel",
}

func (e EventKind) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(e))
}

type edge struct {
	from  State
	event EventKind
}

var transitions = map[edge]State{
	{StateScanning, EventCodeDecoded}:         StateResolving,
	{StateScanning, EventManualCode}:          StateResolving,
	{StateResolving, EventLookupHit}:          StateResolved,
	{StateResolving, EventLookupMiss}:         StateUnresolved,
	{StateResolving, EventLookupLimit}:        StateScanning,
	{StateUnresolved, EventRequestPhoto}:      StateScanning,
	{StateScanning, EventPhotoCaptured}:       StatePhotoCapture,
	{StatePhotoCapture, EventRequestPhoto}:    StateScanning,
	{StatePhotoCapture, EventRequestAnalysis}: StateAnalyzing,
	{StateAnalyzing, EventAnalysisSuccess}:    StateConfirming,
	{StateAnalyzing, EventAnalysisLimit}:      StatePhotoCapture,
	{StateAnalyzing, EventAnalysisError}:      StatePhotoCapture,
	{StateResolved, EventConfirm}:             StateClosed,
	{StateConfirming, EventConfirm}:           StateClosed,
	{StatePhotoCapture, EventConfirm}:         StateClosed,
}

// Transition returns the state that follows from on event. Cancel is
// accepted from every state except closed.
func Transition(from State, event EventKind) (State, error) {
	if event == EventCancel && from != StateClosed {
		return StateClosed, nil
	}
	to, ok := transitions[edge{from, event}]
	if !ok {
		return from, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event, from)
	}
	return to, nil
}

// HoldsCamera reports whether a state keeps the camera stream open
func HoldsCamera(s State) bool {
	return s == StateScanning
}
