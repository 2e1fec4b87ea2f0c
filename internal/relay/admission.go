package relay

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// admit reserves a prediction slot, waiting at most maxWait.
// Returns a release func to be deferred.
func (r *Relay) admit(ctx context.Context) (func(), error) {
	if r.slots == nil {
		return func() {}, nil
	}
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	select {
	case r.slots <- struct{}{}:
		return func() { <-r.slots }, nil
	default:
	}
	timer := time.NewTimer(r.maxWait)
	defer timer.Stop()
	select {
	case r.slots <- struct{}{}:
		return func() { <-r.slots }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		r.log.Warn().Int("capacity", cap(r.slots)).Dur("waited", r.maxWait).Msg("prediction rejected: too busy")
		return func() {}, tooBusyError{capacity: cap(r.slots)}
	}
}

// InFlight returns the number of predictions holding a slot (0 when unlimited).
func (r *Relay) InFlight() int {
	if r.slots == nil {
		return 0
	}
	return len(r.slots)
}

// tooBusyError signals that no prediction slot freed up in time (429).
type tooBusyError struct{ capacity int }

func (e tooBusyError) Error() string { return "Server is busy, try again later." }

func (e tooBusyError) StatusCode() int { return http.StatusTooManyRequests }

func (e tooBusyError) Category() string { return "busy" }

func (e tooBusyError) Details() any { return nil }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var tb tooBusyError
	return errors.As(err, &tb)
}
