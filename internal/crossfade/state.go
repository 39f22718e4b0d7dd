package crossfade

// TransitionState is the controller's crossfade phase.
type TransitionState int

const (
	StateIdle TransitionState = iota
	StateMonitoring
	StateTransitioning
)

func (s TransitionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateMonitoring:
		return "MONITORING"
	case StateTransitioning:
		return "CROSSFADING"
	default:
		return "UNKNOWN"
	}
}

// Slot names one of the two engine slots.
type Slot int

const (
	SlotA Slot = iota
	SlotB
)

func (s Slot) Other() Slot {
	return 1 - s
}

func (s Slot) String() string {
	if s == SlotA {
		return "A"
	}
	return "B"
}
