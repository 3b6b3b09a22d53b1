package shared

import "errors"

// Error kinds shared by every domain package. Domain sentinels wrap one or more
// of these so transport layers can classify failures with errors.Is.
var (
	// ErrValidation indicates bad input; no state changed.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the request clashes with current state.
	ErrConflict = errors.New("conflict")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrIntegrity marks a dependent side effect that failed after its primary
	// operation succeeded.
	ErrIntegrity = errors.New("integrity")
)

type kindError struct {
	msg   string
	kinds []error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() []error { return e.kinds }

// Classify builds a sentinel error carrying msg that matches every kind via errors.Is.
func Classify(msg string, kinds ...error) error {
	return &kindError{msg: msg, kinds: kinds}
}
