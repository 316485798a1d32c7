package reactor

import "fmt"

// Sentinel errors for the fixed failure modes of the reactor. Use
// errors.Is to test for these across a WrapError chain.
var (
	// ErrLoopAlreadyRunning is returned by EventLoop.Loop when called on a
	// loop that is already running.
	ErrLoopAlreadyRunning = fmt.Errorf("reactor: loop already running")

	// ErrConnNotConnected is returned by Conn.Send when the connection is
	// not in the Connected state.
	ErrConnNotConnected = fmt.Errorf("reactor: connection is not connected")

	// ErrServerAlreadyStarted is returned by Server.Start when called more
	// than once.
	ErrServerAlreadyStarted = fmt.Errorf("reactor: server already started")

	// ErrFDAlreadyRegistered is returned when a Poller.UpdateChannel call
	// tries to add an fd that is already tracked.
	ErrFDAlreadyRegistered = fmt.Errorf("reactor: fd already registered with poller")

	// ErrFDNotRegistered is returned when a Poller operation references an
	// fd the poller does not know about.
	ErrFDNotRegistered = fmt.Errorf("reactor: fd not registered with poller")

	// ErrPollerClosed is returned by Poller operations after Close.
	ErrPollerClosed = fmt.Errorf("reactor: poller is closed")

	// ErrRateLimited wraps the Acceptor's rejection of a peer that has
	// exceeded its configured accept rate; test with errors.Is against
	// the error logged by the Acceptor's warning.
	ErrRateLimited = fmt.Errorf("reactor: peer exceeded accept rate limit")
)

// WrapError wraps cause with a contextual message, preserving it for
// errors.Is / errors.As.
func WrapError(message string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s", message)
	}
	return fmt.Errorf("%s: %w", message, cause)
}
