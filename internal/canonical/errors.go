package canonical

import "fmt"

// NumberError is returned when a JSON number falls outside the safe-integer
// range or is non-finite. Callers matching on error codes should use
// errors.As against *NumberError rather than string-matching the message.
type NumberError struct {
	Code string
	Text string
}

func (e *NumberError) Error() string {
	return fmt.Sprintf("%s: %q is not a safe integer or finite number", e.Code, e.Text)
}

// ErrCanonicalNumberInvalid constructs the CANONICAL_NUMBER_INVALID error for
// the given offending literal.
func ErrCanonicalNumberInvalid(text string) error {
	return &NumberError{Code: "CANONICAL_NUMBER_INVALID", Text: text}
}
