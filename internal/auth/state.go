package auth

// State is a step of the authentication flow.
type State int

const (
	StateStart State = iota
	StateCookieSourceSelection
	StateCookieRestored
	StateVerifying
	StateAuthenticated
	StateManualLoginRequired
	StateCredentialsSubmitted
	StateAwaitingSecondFactor
	StateLoginComplete
	StateSessionPersisted
)

var stateNames = [...]string{
	StateStart:                 "Start",
	StateCookieSourceSelection: "CookieSourceSelection",
	StateCookieRestored:        "CookieRestored",
	StateVerifying:             "Verifying",
	StateAuthenticated:         "Authenticated",
	StateManualLoginRequired:   "ManualLoginRequired",
	StateCredentialsSubmitted:  "CredentialsSubmitted",
	StateAwaitingSecondFactor:  "AwaitingSecondFactor",
	StateLoginComplete:         "LoginComplete",
	StateSessionPersisted:      "SessionPersisted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// transitions lists the legal successors of each state.
var transitions = map[State][]State{
	StateStart:                 {StateCookieSourceSelection},
	StateCookieSourceSelection: {StateCookieRestored, StateManualLoginRequired},
	StateCookieRestored:        {StateVerifying},
	StateVerifying:             {StateAuthenticated, StateManualLoginRequired},
	StateAuthenticated:         {StateSessionPersisted},
	StateManualLoginRequired:   {StateCredentialsSubmitted},
	StateCredentialsSubmitted:  {StateAwaitingSecondFactor, StateLoginComplete},
	StateAwaitingSecondFactor:  {StateLoginComplete},
	StateLoginComplete:         {StateSessionPersisted},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
