package broker

import "fmt"

// AuthError is permanent: the token was rejected. Callers must stop
// retrying and surface this to the Scheduler (spec §4.1, §7).
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("broker: auth error %s: %s", e.Code, e.Message)
}

// ProposalError is permanent for that proposal: the broker rejected the
// requested contract terms.
type ProposalError struct {
	Code    string
	Message string
}

func (e *ProposalError) Error() string {
	return fmt.Sprintf("broker: proposal error %s: %s", e.Code, e.Message)
}

// NetError is transient: the caller should retry with backoff.
type NetError struct {
	Err error
}

func (e *NetError) Error() string {
	return fmt.Sprintf("broker: network error: %v", e.Err)
}

func (e *NetError) Unwrap() error { return e.Err }
