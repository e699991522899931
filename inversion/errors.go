package inversion

import (
	"errors"
	"fmt"
)

var (
	// ErrNonFinite is returned when the latent becomes NaN or infinite after a step.
	ErrNonFinite = errors.New("inversion: latent became non-finite")
	// ErrAttemptsExhausted is returned when max_attempts runs finish before the
	// accepted target is reached.
	ErrAttemptsExhausted = errors.New("inversion: attempts exhausted before target accepted")
)

// CollaboratorError wraps a failure of the generator, critic, physics or well
// collaborator. It aborts the whole inversion.
type CollaboratorError struct {
	Stage string
	Err   error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("inversion: %s: %v", e.Stage, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}
