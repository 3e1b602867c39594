package translate

import "fmt"

// TranslationError reports an inbound body that cannot be mapped to a
// ChatRequest, or upstream bytes that cannot be decoded.
type TranslationError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *TranslationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *TranslationError) Unwrap() error {
	return e.Err
}

func translationErrorf(err error, format string, args ...any) *TranslationError {
	return &TranslationError{Message: fmt.Sprintf(format, args...), Err: err}
}
