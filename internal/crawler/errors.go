package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrTimeout marks fetch failures caused by a per-request deadline.
var ErrTimeout = errors.New("fetch timed out")

// ErrAlreadyStarted is returned when Run is called on a Scanner that has
// already left the idle state.
var ErrAlreadyStarted = errors.New("scan already started")

var (
	errNoHTTPFetcher = errors.New("no http fetcher configured")
	errNoRenderer    = errors.New("no renderer configured for target")
)

// IsTimeout reports whether err is a timeout from any collaborator.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func timeoutMessage(elapsed time.Duration) string {
	return fmt.Sprintf("Timeout after %d milliseconds.", elapsed.Milliseconds())
}
