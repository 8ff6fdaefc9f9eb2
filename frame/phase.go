package frame

// Phase is a state of the per-frame dispatch state machine.
type Phase int

// Dispatch phases in loop order.
const (
	PhaseAcquire Phase = iota
	PhaseEncode
	PhaseSubmit
	PhasePresentRequested
	PhaseWaitComplete
	PhasePoll
)

var phaseNames = [...]string{
	PhaseAcquire:          "acquire",
	PhaseEncode:           "encode",
	PhaseSubmit:           "submit",
	PhasePresentRequested: "present-requested",
	PhaseWaitComplete:     "wait-complete",
	PhasePoll:             "poll",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}
