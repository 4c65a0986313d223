package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RemoteError kinds.
const (
	RemoteTransient = "transient"
	RemotePermanent = "permanent"
)

// RemoteError is a failed store command. Transient errors (network,
// timeouts, 5xx) are safe to retry; permanent errors (validation,
// conflicts) must surface to the operator instead.
type RemoteError struct {
	Kind    string
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("order store: %s (%s, status %d)", e.Message, e.Kind, e.Status)
	}
	return fmt.Sprintf("order store: %s (%s)", e.Message, e.Kind)
}

// Transient reports whether retrying the command is safe.
func (e *RemoteError) Transient() bool {
	return e.Kind == RemoteTransient
}

// IsTransient reports whether err wraps a transient RemoteError.
func IsTransient(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Transient()
}

// ConsistencyTimeoutError reports that an acknowledged order never became
// visible in the local mirror within the configured bound. The action is
// safe to retry.
type ConsistencyTimeoutError struct {
	OrderID uuid.UUID
	Waited  time.Duration
}

func (e *ConsistencyTimeoutError) Error() string {
	return fmt.Sprintf("order %s not visible after %s: not ready, try again", e.OrderID, e.Waited)
}

// CommitError reports the first failure during sequential staging commit.
// Items before Index are already canonical; the failing item and everything
// after it remain staged for retry.
type CommitError struct {
	Index    int
	DishName string
	Err      error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit stopped at item %d (%s): %v", e.Index+1, e.DishName, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// SafeToRetry reports whether re-running the commit may succeed without
// operator intervention.
func (e *CommitError) SafeToRetry() bool {
	return IsTransient(e.Err)
}
