// Package predict turns loaded models into crop recommendations and soil
// health reports.
package predict

import (
	"errors"
	"fmt"

	"krishimitra/ml"
)

var (
	// ErrInvalidInput marks input the model rejected; it is safe to show
	// the wrapped reason to the caller.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInternal marks any other prediction failure. Its detail is for
	// logs only.
	ErrInternal = errors.New("internal prediction error")
)

// classify sorts a model error into the input or internal bucket.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ml.ErrNonFiniteInput):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	default:
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}
}
