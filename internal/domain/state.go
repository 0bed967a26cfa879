package domain

// State is the chat controller state.
type State string

const (
	StateNoTicket           State = "NO_TICKET"
	StateCreating           State = "CREATING"
	StateActive             State = "ACTIVE"
	StatePinRequired        State = "PIN_REQUIRED"
	StatePinMissing         State = "PIN_MISSING"
	StateVerifying          State = "VERIFYING"
	StateResolutionPrompted State = "RESOLUTION_PROMPTED"
)

// AcceptsChatInput reports whether messages may be sent in this state.
func (s State) AcceptsChatInput() bool {
	return s == StateActive || s == StateResolutionPrompted
}

// HandleStatusFor derives the ticket handle status from the controller state.
func HandleStatusFor(s State, verified bool) HandleStatus {
	switch s {
	case StatePinRequired, StatePinMissing, StateVerifying:
		return HandlePinPending
	case StateResolutionPrompted:
		return HandleResolvedPending
	case StateNoTicket, StateCreating:
		return HandleClosed
	}
	if verified {
		return HandleVerified
	}
	return HandleOpen
}

// NoticeKind classifies an inline notice.
type NoticeKind string

const (
	NoticeError   NoticeKind = "error"
	NoticeSuccess NoticeKind = "success"
	NoticeInfo    NoticeKind = "info"
)

// Notice is the non-blocking inline message shown by the widget.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
}
