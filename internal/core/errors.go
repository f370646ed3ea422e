package core

import "errors"

// UsageError asks the user to fix the invocation. Its message is printed
// verbatim and no remote call is made.
type UsageError struct {
	Message string
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	return e.Message
}

var (
	ErrMissingOptions   = &UsageError{"Required options missing, please run the program with the -h option for further information."}
	ErrMissingTopics    = &UsageError{"Please provide both an event and a state topic to create a registry."}
	ErrMissingUpdate    = &UsageError{"Please provide either a numeric id or a public key and its format to update a device."}
	ErrUnknownOperation = &UsageError{"Unknown operation, please run the program with the -h option for further information."}
)

// IsUsageError reports whether err is a UsageError.
func IsUsageError(err error) bool {
	var usage *UsageError
	return errors.As(err, &usage)
}
