package relaybus

import "fmt"

// ErrorKind classifies a BusError by cause, independent of the Go type
// system. Callers that need to branch on failure reason should switch on
// Kind rather than on error message text.
type ErrorKind string

// Error kinds, per the operation table.
const (
	ErrKindInvalidArgument       ErrorKind = "invalid-argument"
	ErrKindMissingSchema         ErrorKind = "missing-schema"
	ErrKindSchemaValidation      ErrorKind = "schema-validation-failed"
	ErrKindCycleDetected         ErrorKind = "cycle-detected"
	ErrKindMaxDepthExceeded      ErrorKind = "max-depth-exceeded"
	ErrKindClosed                ErrorKind = "closed"
	ErrKindBufferFull            ErrorKind = "buffer-full"
	ErrKindStoreError            ErrorKind = "store-error"
	ErrKindHandlerMissing        ErrorKind = "handler-missing"
	ErrKindHandlerException      ErrorKind = "handler-exception"
	ErrKindHandlerTimeout        ErrorKind = "handler-timeout"
	ErrKindHandlerReturnedFalse  ErrorKind = "handler-returned-false"
	ErrKindNoTxStore             ErrorKind = "no-tx-store"
	ErrKindEmptyEvents           ErrorKind = "empty-events"
)

// BusError wraps a failure with its Kind and, when applicable, the
// underlying cause. It is the error type every public operation returns on
// failure.
type BusError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *BusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("relaybus: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("relaybus: %s: %s", e.Kind, e.Message)
}

func (e *BusError) Unwrap() error { return e.Err }

// Is reports whether target is a *BusError with the same Kind, so callers
// can write errors.Is(err, &BusError{Kind: ErrKindClosed}).
func (e *BusError) Is(target error) bool {
	t, ok := target.(*BusError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newBusError(kind ErrorKind, message string) *BusError {
	return &BusError{Kind: kind, Message: message}
}

func wrapBusError(kind ErrorKind, message string, err error) *BusError {
	return &BusError{Kind: kind, Message: message, Err: err}
}
