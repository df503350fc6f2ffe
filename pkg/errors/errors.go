package errors

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes errors
type ErrorCode string

const (
	ErrCodeDecode     ErrorCode = "DECODE_ERROR"
	ErrCodeEncode     ErrorCode = "ENCODE_ERROR"
	ErrCodeProbe      ErrorCode = "PROBE_ERROR"
	ErrCodeIO         ErrorCode = "IO_ERROR"
	ErrCodeArchive    ErrorCode = "ARCHIVE_ERROR"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
)

// StudioError is the base structured error
type StudioError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *StudioError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *StudioError) Unwrap() error {
	return e.Cause
}

// DecodeError means the normalizer input could not be decoded to samples
type DecodeError struct {
	StudioError
	Path string
}

func NewDecodeError(path, message string, cause error) *DecodeError {
	return &DecodeError{
		StudioError: StudioError{Code: ErrCodeDecode, Message: message, Cause: cause},
		Path:        path,
	}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s (path=%s)", e.StudioError.Error(), e.Path)
}

// EncodeError represents a non-zero engine exit at any stage
type EncodeError struct {
	StudioError
	Stage    string
	Args     []string
	ExitCode int
	Stderr   string
}

func NewEncodeError(message string, args []string, exitCode int, stderr string, cause error) *EncodeError {
	return &EncodeError{
		StudioError: StudioError{Code: ErrCodeEncode, Message: message, Cause: cause},
		Args:        args,
		ExitCode:    exitCode,
		Stderr:      stderr,
	}
}

// WithStage tags the error with the pipeline stage that produced it
func (e *EncodeError) WithStage(stage string) *EncodeError {
	e.Stage = stage
	return e
}

func (e *EncodeError) Error() string {
	msg := fmt.Sprintf("[%s] %s (exit=%d, stderr=%q): %v",
		e.Code, e.Message, e.ExitCode, truncate(e.Stderr, 200), e.Cause)
	if e.Stage != "" {
		msg += fmt.Sprintf(" (stage=%s)", e.Stage)
	}
	return msg
}

// ProbeError represents a duration or stream query failure
type ProbeError struct {
	StudioError
	Path string
}

func NewProbeError(path, message string, cause error) *ProbeError {
	return &ProbeError{
		StudioError: StudioError{Code: ErrCodeProbe, Message: message, Cause: cause},
		Path:        path,
	}
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s (path=%s)", e.StudioError.Error(), e.Path)
}

// IOError represents a filesystem create/remove/rename failure
type IOError struct {
	StudioError
	Op   string
	Path string
}

func NewIOError(op, path string, cause error) *IOError {
	return &IOError{
		StudioError: StudioError{Code: ErrCodeIO, Message: op + " failed", Cause: cause},
		Op:          op,
		Path:        path,
	}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s (path=%s)", e.StudioError.Error(), e.Path)
}

// ArchiveError represents a failure to finalize the job archive
type ArchiveError struct {
	StudioError
	Path string
}

func NewArchiveError(path, message string, cause error) *ArchiveError {
	return &ArchiveError{
		StudioError: StudioError{Code: ErrCodeArchive, Message: message, Cause: cause},
		Path:        path,
	}
}

// ValidationError represents input validation failure
type ValidationError struct {
	StudioError
	Field string
	Value interface{}
}

func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		StudioError: StudioError{Code: ErrCodeValidation, Message: message},
		Field:       field,
		Value:       value,
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] field=%s value=%v: %s", e.Code, e.Field, e.Value, e.Message)
}

// CodeOf returns the code of the first StudioError in err's chain, or "" if none
func CodeOf(err error) ErrorCode {
	for err != nil {
		switch e := err.(type) {
		case *DecodeError:
			return e.Code
		case *EncodeError:
			return e.Code
		case *ProbeError:
			return e.Code
		case *IOError:
			return e.Code
		case *ArchiveError:
			return e.Code
		case *ValidationError:
			return e.Code
		case *StudioError:
			return e.Code
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// Retryable reports whether err is worth another engine attempt
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeEncode, ErrCodeProbe:
		return true
	default:
		return false
	}
}

// Is enables errors.Is checks
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As enables errors.As checks
func As[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
