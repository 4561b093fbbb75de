package realtime

// Phase is a point in the session lifecycle.
type Phase int

const (
	// PhaseCreated is the initial phase: configuration is mutable and no
	// transport exists yet.
	PhaseCreated Phase = iota
	// PhaseConnecting covers the transport handshake up to the service
	// acknowledgment.
	PhaseConnecting
	// PhaseActive accepts audio writes and delivers recognition events.
	PhaseActive
	// PhaseStopping has sent the end signal and awaits the final frame.
	PhaseStopping
	// PhaseClosed is terminal: the session finished or was torn down.
	PhaseClosed
	// PhaseErrored is terminal: the session failed and cannot be reused.
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseConnecting:
		return "connecting"
	case PhaseActive:
		return "active"
	case PhaseStopping:
		return "stopping"
	case PhaseClosed:
		return "closed"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session can never leave p.
func (p Phase) Terminal() bool {
	return p == PhaseClosed || p == PhaseErrored
}

// validTransitions encodes the lifecycle graph. Terminal phases admit no
// transitions; every non-terminal phase may fail into PhaseErrored or be
// closed outright.
var validTransitions = map[Phase][]Phase{
	PhaseCreated:    {PhaseConnecting, PhaseClosed},
	PhaseConnecting: {PhaseActive, PhaseClosed, PhaseErrored},
	PhaseActive:     {PhaseStopping, PhaseClosed, PhaseErrored},
	PhaseStopping:   {PhaseClosed, PhaseErrored},
}

func (p Phase) canTransition(to Phase) bool {
	for _, next := range validTransitions[p] {
		if next == to {
			return true
		}
	}
	return false
}
