package toss

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sony/gobreaker"
)

// Error is a rejection returned by the Toss Payments API. Code is one of
// the gateway's documented error codes and is passed through to callers
// unchanged; free-text matching on Message is deliberately avoided.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("toss: %s (%s)", e.Message, e.Code)
}

// IsGatewayError reports whether err is a definitive rejection from the
// gateway, as opposed to a transport failure of unknown outcome.
func IsGatewayError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsIndeterminate reports whether the outcome of the call is unknown: the
// request may have reached the gateway and captured funds even though the
// client saw an error. Such failures must surface as retryable, never as a
// definitive rejection.
func IsIndeterminate(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// IsUnavailable reports whether the circuit breaker refused the call before
// any request was sent. Local state is guaranteed untouched.
func IsUnavailable(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
