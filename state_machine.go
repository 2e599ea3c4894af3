package household

// SessionState is the authentication lifecycle state of a SessionController
type SessionState string

const (
	SessionInitializing    SessionState = "initializing"
	SessionUnauthenticated SessionState = "unauthenticated"
	SessionAuthenticating  SessionState = "authenticating"
	SessionAuthenticated   SessionState = "authenticated"
	SessionError           SessionState = "error"
	SessionSigningOut      SessionState = "signing_out"
)

func (s SessionState) String() string {
	return string(s)
}

// Loading reports whether the viewer should see a loading indicator
func (s SessionState) Loading() bool {
	switch s {
	case SessionInitializing, SessionAuthenticating, SessionSigningOut:
		return true
	default:
		return false
	}
}

// settled states are the ones a failed operation can revert to
func (s SessionState) settled() bool {
	switch s {
	case SessionUnauthenticated, SessionAuthenticated, SessionError:
		return true
	default:
		return false
	}
}

type sessionTransitions map[SessionState]map[SessionState]struct{}

func defaultSessionTransitions() sessionTransitions {
	return sessionTransitions{
		SessionInitializing: {
			SessionUnauthenticated: {},
			SessionAuthenticated:   {},
			SessionError:           {},
			SessionAuthenticating:  {},
			SessionSigningOut:      {},
		},
		SessionUnauthenticated: {
			SessionAuthenticating: {},
			SessionAuthenticated:  {},
			SessionSigningOut:     {},
		},
		SessionAuthenticating: {
			SessionAuthenticated:   {},
			SessionUnauthenticated: {},
			SessionError:           {},
			SessionSigningOut:      {},
		},
		SessionAuthenticated: {
			SessionAuthenticating:  {},
			SessionUnauthenticated: {},
			SessionSigningOut:      {},
			SessionAuthenticated:   {},
		},
		SessionError: {
			SessionUnauthenticated: {},
			SessionAuthenticating:  {},
			SessionAuthenticated:   {},
			SessionSigningOut:      {},
		},
		SessionSigningOut: {
			SessionUnauthenticated: {},
		},
	}
}

// allows reports whether from -> to is part of the graph. Re-entering the
// same state is always allowed, it only refreshes the snapshot.
func (t sessionTransitions) allows(from, to SessionState) bool {
	if from == to {
		return true
	}
	next, ok := t[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// CanTransition reports whether the controller accepts a change from one
// session state to another
func CanTransition(from, to SessionState) bool {
	return defaultSessionTransitions().allows(from, to)
}
