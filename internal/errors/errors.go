package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeAlreadyInitialized        ErrorType = "ALREADY_INITIALIZED"
	ErrorTypeNotInitialized            ErrorType = "NOT_INITIALIZED"
	ErrorTypePathNotFound              ErrorType = "PATH_NOT_FOUND"
	ErrorTypeEmptyCommitMessage        ErrorType = "EMPTY_COMMIT_MESSAGE"
	ErrorTypeNothingToCommit           ErrorType = "NOTHING_TO_COMMIT"
	ErrorTypeDuplicateBranch           ErrorType = "DUPLICATE_BRANCH"
	ErrorTypeInvalidBranchName         ErrorType = "INVALID_BRANCH_NAME"
	ErrorTypeUnknownRevision           ErrorType = "UNKNOWN_REVISION"
	ErrorTypeCannotDeleteCurrentBranch ErrorType = "CANNOT_DELETE_CURRENT_BRANCH"
	ErrorTypeUncommittedChanges        ErrorType = "UNCOMMITTED_CHANGES"
	ErrorTypeTransport                 ErrorType = "TRANSPORT_ERROR"
	ErrorTypeContentStore              ErrorType = "CONTENT_STORE_ERROR"
	ErrorTypeValidation                ErrorType = "VALIDATION"
	ErrorTypeInternal                  ErrorType = "INTERNAL"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"-"`
	Details any       `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error of the same Type, so callers can test against the
// sentinel values below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// Sentinels for errors.Is comparisons
var (
	ErrAlreadyInitialized        = &Error{Type: ErrorTypeAlreadyInitialized}
	ErrNotInitialized            = &Error{Type: ErrorTypeNotInitialized}
	ErrPathNotFound              = &Error{Type: ErrorTypePathNotFound}
	ErrEmptyCommitMessage        = &Error{Type: ErrorTypeEmptyCommitMessage}
	ErrNothingToCommit           = &Error{Type: ErrorTypeNothingToCommit}
	ErrDuplicateBranch           = &Error{Type: ErrorTypeDuplicateBranch}
	ErrInvalidBranchName         = &Error{Type: ErrorTypeInvalidBranchName}
	ErrUnknownRevision           = &Error{Type: ErrorTypeUnknownRevision}
	ErrCannotDeleteCurrentBranch = &Error{Type: ErrorTypeCannotDeleteCurrentBranch}
	ErrUncommittedChanges        = &Error{Type: ErrorTypeUncommittedChanges}
	ErrTransport                 = &Error{Type: ErrorTypeTransport}
	ErrContentStore              = &Error{Type: ErrorTypeContentStore}
	ErrValidation                = &Error{Type: ErrorTypeValidation}
)

func AlreadyInitialized(path string) *Error {
	return &Error{
		Type:    ErrorTypeAlreadyInitialized,
		Message: fmt.Sprintf("repository already initialized at %s", path),
		Code:    http.StatusConflict,
	}
}

func NotInitialized(path string) *Error {
	return &Error{
		Type:    ErrorTypeNotInitialized,
		Message: fmt.Sprintf("not a folio repository: %s", path),
		Code:    http.StatusNotFound,
	}
}

func PathNotFound(path string) *Error {
	return &Error{
		Type:    ErrorTypePathNotFound,
		Message: fmt.Sprintf("path not found: %s", path),
		Code:    http.StatusNotFound,
		Details: map[string]string{"path": path},
	}
}

func EmptyCommitMessage() *Error {
	return &Error{
		Type:    ErrorTypeEmptyCommitMessage,
		Message: "commit message is empty",
		Code:    http.StatusBadRequest,
	}
}

func NothingToCommit() *Error {
	return &Error{
		Type:    ErrorTypeNothingToCommit,
		Message: "nothing to commit",
		Code:    http.StatusConflict,
	}
}

func DuplicateBranch(name string) *Error {
	return &Error{
		Type:    ErrorTypeDuplicateBranch,
		Message: fmt.Sprintf("branch already exists: %s", name),
		Code:    http.StatusConflict,
		Details: map[string]string{"branch": name},
	}
}

func InvalidBranchName(name, reason string) *Error {
	return &Error{
		Type:    ErrorTypeInvalidBranchName,
		Message: fmt.Sprintf("invalid branch name %q: %s", name, reason),
		Code:    http.StatusBadRequest,
		Details: map[string]string{"branch": name},
	}
}

func UnknownRevision(rev string) *Error {
	return &Error{
		Type:    ErrorTypeUnknownRevision,
		Message: fmt.Sprintf("unknown revision: %s", rev),
		Code:    http.StatusNotFound,
		Details: map[string]string{"revision": rev},
	}
}

func CannotDeleteCurrentBranch(name string) *Error {
	return &Error{
		Type:    ErrorTypeCannotDeleteCurrentBranch,
		Message: fmt.Sprintf("cannot delete the current branch: %s", name),
		Code:    http.StatusConflict,
		Details: map[string]string{"branch": name},
	}
}

func UncommittedChanges(paths []string) *Error {
	return &Error{
		Type:    ErrorTypeUncommittedChanges,
		Message: fmt.Sprintf("working tree has %d uncommitted change(s)", len(paths)),
		Code:    http.StatusConflict,
		Details: paths,
	}
}

func Transport(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeTransport,
		Message: message,
		Code:    http.StatusBadGateway,
		cause:   cause,
	}
}

func ContentStore(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeContentStore,
		Message: message,
		Code:    http.StatusInternalServerError,
		cause:   cause,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

func Internal(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Message: message,
		Code:    http.StatusInternalServerError,
		cause:   cause,
	}
}

// HTTPStatus returns the status code carried by err, or 500 when err is not
// one of ours.
func HTTPStatus(err error) int {
	var e *Error
	if stderrors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return http.StatusInternalServerError
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeInternal.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}
