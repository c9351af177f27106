// Package session decides whether a browser page is logged in and, when it
// is not, blocks a run until a human completes the login in the visible
// browser window.
package session

// AuthState is the detector's verdict for one page snapshot.
type AuthState int

const (
	// Unknown means no signal fired either way. Callers that need a
	// boolean must treat it as Unauthenticated.
	Unknown AuthState = iota
	Unauthenticated
	Authenticated
)

func (s AuthState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}
