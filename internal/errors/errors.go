// Package errors provides structured error types for abgen.
// Every error carries a category, code, message and retryable flag so the CLI
// can report failures uniformly and decide on exit status.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by pipeline stage.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryGeneration ErrorCategory = "GENERATION"
	ErrCategoryExport     ErrorCategory = "EXPORT"
	ErrCategoryPartition  ErrorCategory = "PARTITION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidRecordCount = "INVALID_RECORD_COUNT"
	CodeInvalidConfig      = "INVALID_CONFIG"

	// Generation codes
	CodeCancelled = "CANCELLED"

	// Export codes
	CodeWriteFailed  = "WRITE_FAILED"
	CodeCommitFailed = "COMMIT_FAILED"

	// Partition codes
	CodeBuildFailed = "BUILD_FAILED"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeDeleteFailed   = "DELETE_FAILED"
	CodeListFailed     = "LIST_FAILED"
	CodeRejected       = "REQUEST_REJECTED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// GenError is the structured error type used throughout abgen.
type GenError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *GenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *GenError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *GenError) Is(target error) bool {
	var t *GenError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new GenError.
func New(category ErrorCategory, code, message string) *GenError {
	return &GenError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new GenError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *GenError {
	return &GenError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *GenError) WithDetails(details map[string]interface{}) *GenError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ge *GenError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return false
}

// IsValidation reports whether err was raised before any generation work started.
func IsValidation(err error) bool {
	var ge *GenError
	if errors.As(err, &ge) {
		return ge.Category == ErrCategoryValidation
	}
	return false
}

func isRetryable(category ErrorCategory, code string) bool {
	if category != ErrCategoryStorage {
		return false
	}
	switch code {
	case CodeUploadFailed, CodeDownloadFailed, CodeDeleteFailed, CodeListFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *GenError {
	return New(ErrCategoryValidation, code, message)
}

func NewExportError(code, message string, cause error) *GenError {
	return Wrap(ErrCategoryExport, code, message, cause)
}

func NewPartitionError(message string, cause error) *GenError {
	return Wrap(ErrCategoryPartition, CodeBuildFailed, message, cause)
}

func NewStorageError(code, message string, cause error) *GenError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *GenError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// GetCategory returns the category of a GenError in err's chain, or "".
func GetCategory(err error) ErrorCategory {
	var ge *GenError
	if errors.As(err, &ge) {
		return ge.Category
	}
	return ""
}

// GetCode returns the code of a GenError in err's chain, or "".
func GetCode(err error) string {
	var ge *GenError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}
