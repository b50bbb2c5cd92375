package gateway

import (
	"errors"
	"fmt"

	"github.com/mattjoyce/hostdeck/internal/panelapi"
)

// Generic phrases used when the panel gives no message of its own.
const (
	MsgLoadFailed    = "could not load"
	MsgSaveFailed    = "save failed"
	MsgExecuteFailed = "query could not be executed"
	MsgMutateFailed  = "operation failed"
)

var (
	// ErrUnsupported is returned when the backend of a workspace does not
	// offer an operation (executing in a file workspace, toggling DNS).
	ErrUnsupported = errors.New("operation not supported by this workspace")
	// ErrNotExecutable is returned when Execute is called on a non-query
	// document.
	ErrNotExecutable = errors.New("only query documents can be executed")
)

// LoadError is a failed initial fetch of a document or listing.
type LoadError struct {
	Resource string
	Message  string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s", e.Resource, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError is a failed write. The document keeps its edits.
type SaveError struct {
	Resource string
	Message  string
	Err      error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %s: %s", e.Resource, e.Message)
}

func (e *SaveError) Unwrap() error { return e.Err }

// ExecuteError is a query that never reached the database. Errors reported
// by the database itself travel in document.Result.Error instead.
type ExecuteError struct {
	Database string
	Message  string
	Err      error
}

func (e *ExecuteError) Error() string {
	return fmt.Sprintf("execute on %s: %s", e.Database, e.Message)
}

func (e *ExecuteError) Unwrap() error { return e.Err }

// MutationError is a failed create, delete, restore or toggle.
type MutationError struct {
	Action  Action
	Target  string
	Message string
	Err     error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Action, e.Target, e.Message)
}

func (e *MutationError) Unwrap() error { return e.Err }

// BackendError is a failure described by the backend adapter itself, such
// as a malformed draft it refused to send or a query the database rejected
// while saving.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string { return e.Message }

// Refuse returns a *BackendError with a formatted message.
func Refuse(format string, args ...any) error {
	return &BackendError{Message: fmt.Sprintf(format, args...)}
}

// IsTransport reports whether err was caused by the panel being unreachable
// rather than by the panel refusing the request.
func IsTransport(err error) bool {
	return panelapi.IsTransport(err)
}

// IsRejection reports whether err is the panel or the adapter refusing the
// request, as opposed to the panel being unreachable.
func IsRejection(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return true
	}
	var ae *panelapi.APIError
	return errors.As(err, &ae)
}

// Message returns the user-facing text for err: the panel's own message when
// there is one, otherwise fallback.
func Message(err error, fallback string) string {
	if msg := panelapi.ServerMessage(err); msg != "" {
		return msg
	}
	var be *BackendError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return fallback
}
