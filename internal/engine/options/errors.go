package options

import "fmt"

// MissingTargetError is returned when neither url nor html is present.
type MissingTargetError struct{}

func (e *MissingTargetError) Error() string {
	return "options: either url or html must be provided"
}

// InvalidURLError carries the url as it looked after trimming and scheme
// defaulting.
type InvalidURLError struct {
	URL string
}

func (e *InvalidURLError) Error() string {
	return "options: invalid url: " + e.URL
}

// UnsupportedValueError is returned for values that cannot be written to a
// query string.
type UnsupportedValueError struct {
	Key   string
	Value any
}

func (e *UnsupportedValueError) Error() string {
	return fmt.Sprintf("options: unsupported value for %q: %T", e.Key, e.Value)
}
