package agent

import (
	"errors"
	"fmt"
)

// Collaborator failure taxonomy. The supervisor converts these into degraded
// verdicts; they never propagate out of Process as business errors.
var (
	// ErrTimeout means the collaborator did not answer within its bounded wait.
	ErrTimeout = errors.New("collaborator timeout")

	// ErrUnavailable is a transient failure (connection refused, breaker open).
	ErrUnavailable = errors.New("collaborator unavailable")

	// ErrInvalidResponse means the collaborator answered but its verdict failed
	// basic validation (score outside [0,1], empty label).
	ErrInvalidResponse = errors.New("collaborator returned invalid verdict")

	// ErrStorageUnavailable means a feedback or decision write failed. Surfaced
	// to the caller, never swallowed, and never blocks a decision already made.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ErrKind maps a collaborator failure to the short kind string recorded on
// degraded verdicts.
func ErrKind(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// ValidateVerdict checks the basic contract every collaborator verdict must
// satisfy. Violations are treated as ErrInvalidResponse by the supervisor.
func ValidateVerdict(v Verdict) error {
	if v.Score < 0 || v.Score > 1 {
		return fmt.Errorf("%w: score %v outside [0,1]", ErrInvalidResponse, v.Score)
	}
	if v.Label == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidResponse)
	}
	return nil
}
