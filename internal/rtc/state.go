package rtc

// CallState is the vendor-reported lifecycle state of a call.
type CallState string

const (
	// StateNew is reported when the vendor first learns of a call.
	StateNew CallState = "new"
	// StateRinging is reported while a call is alerting.
	StateRinging CallState = "ringing"
	// StateActive is reported once media is flowing.
	StateActive CallState = "active"
	// StateHeld is reported when the remote or local side holds the call.
	StateHeld CallState = "held"
	// StateHangup is reported when either side ends the call.
	StateHangup CallState = "hangup"
	// StateDestroy is reported when the vendor tears the call object down.
	StateDestroy CallState = "destroy"
)

// validTransitions defines which vendor state transitions are expected.
// Outbound calls may skip ringing and report active directly.
var validTransitions = map[CallState][]CallState{
	StateNew:     {StateRinging, StateActive, StateHangup, StateDestroy},
	StateRinging: {StateActive, StateHangup, StateDestroy},
	StateActive:  {StateHeld, StateHangup, StateDestroy},
	StateHeld:    {StateActive, StateHangup, StateDestroy},
	StateHangup:  {StateDestroy},
	StateDestroy: {},
}

// CanTransitionTo checks whether moving from s to next is an expected step.
func (s CallState) CanTransitionTo(next CallState) bool {
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, st := range allowed {
		if st == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends the call's lifecycle.
func (s CallState) IsTerminal() bool {
	return s == StateHangup || s == StateDestroy
}

// Direction distinguishes who initiated a call.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)
