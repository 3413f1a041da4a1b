// Package errors provides the closed, structured error taxonomy used across
// the ReelVault core engine: every error raised by the object store facade,
// the lifecycle controller, the restore orchestrator, the upload engine and
// the watcher carries a stable Code that maps 1:1 to an external Category,
// so callers at the process boundary never need to pattern-match on message
// strings.
package errors

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode is a stable identifier for a specific failure mode.
type ErrorCode string

const (
	// ObjectStore: network, 5xx, throttling, protocol errors from any
	// facade call. Retried with exponential backoff.
	ErrCodeObjectStoreNetwork      ErrorCode = "OBJSTORE_NETWORK"
	ErrCodeObjectStoreThrottled    ErrorCode = "OBJSTORE_THROTTLED"
	ErrCodeObjectStoreNotFound     ErrorCode = "OBJSTORE_NOT_FOUND"
	ErrCodeObjectStoreBucketAbsent ErrorCode = "OBJSTORE_BUCKET_ABSENT"
	ErrCodeObjectStoreProtocol     ErrorCode = "OBJSTORE_PROTOCOL"
	ErrCodeObjectStoreTimeout      ErrorCode = "OBJSTORE_TIMEOUT"

	// Configuration: tier-violation, unknown key, empty bucket, invalid
	// tier string. Never retried.
	ErrCodeConfigTierViolation ErrorCode = "CONFIG_TIER_VIOLATION"
	ErrCodeConfigUnknownField  ErrorCode = "CONFIG_UNKNOWN_FIELD"
	ErrCodeConfigInvalidValue  ErrorCode = "CONFIG_INVALID_VALUE"
	ErrCodeConfigEmptyBucket   ErrorCode = "CONFIG_EMPTY_BUCKET"
	ErrCodeConfigInvalidTier   ErrorCode = "CONFIG_INVALID_TIER"

	// File: path resolution failure, read error, size over cap, path
	// outside home. Watcher logs and skips the file.
	ErrCodeFilePathResolution ErrorCode = "FILE_PATH_RESOLUTION"
	ErrCodeFileRead           ErrorCode = "FILE_READ"
	ErrCodeFileSizeOverCap    ErrorCode = "FILE_SIZE_OVER_CAP"
	ErrCodeFileOutsideHome    ErrorCode = "FILE_OUTSIDE_HOME"
	ErrCodeFileNotFound       ErrorCode = "FILE_NOT_FOUND"

	// Authentication: missing credentials, biometric cancelled, no
	// access. Never retried automatically.
	ErrCodeAuthMissingCredentials ErrorCode = "AUTH_MISSING_CREDENTIALS"
	ErrCodeAuthBiometricCancelled ErrorCode = "AUTH_BIOMETRIC_CANCELLED"
	ErrCodeAuthNoAccess           ErrorCode = "AUTH_NO_ACCESS"

	// Database: metadata store unavailable. Logged, never fails the
	// upload.
	ErrCodeDatabaseUnavailable ErrorCode = "DATABASE_UNAVAILABLE"
	ErrCodeDatabaseWrite       ErrorCode = "DATABASE_WRITE"

	// Lifecycle: rule install failed, verification timed out, access
	// denied. Fails the upload-readiness probe.
	ErrCodeLifecycleInstallFailed ErrorCode = "LIFECYCLE_INSTALL_FAILED"
	ErrCodeLifecycleVerifyTimeout ErrorCode = "LIFECYCLE_VERIFY_TIMEOUT"
	ErrCodeLifecycleAccessDenied  ErrorCode = "LIFECYCLE_ACCESS_DENIED"

	// Other: unexpected / internal.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeOther    ErrorCode = "OTHER_ERROR"
)

// Category groups error codes into the closed external taxonomy.
type Category string

const (
	CategoryObjectStore    Category = "object_store"
	CategoryConfiguration  Category = "configuration"
	CategoryFile           Category = "file"
	CategoryAuthentication Category = "authentication"
	CategoryDatabase       Category = "database"
	CategoryLifecycle      Category = "lifecycle"
	CategoryOther          Category = "other"
)

// ReelVaultError is the structured error type returned by every core
// component. It wraps an underlying cause (when one exists) and is
// compatible with errors.Is/errors.As via Unwrap and Is.
type ReelVaultError struct {
	Code      ErrorCode         `json:"code"`
	Category  Category          `json:"category"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`

	Retryable bool   `json:"retryable"`
	Stack     string `json:"-"`
}

func (e *ReelVaultError) Error() string {
	prefix := string(e.Code)
	if e.Component != "" && e.Operation != "" {
		prefix = fmt.Sprintf("%s:%s %s", e.Component, e.Operation, e.Code)
	} else if e.Component != "" {
		prefix = fmt.Sprintf("%s %s", e.Component, e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *ReelVaultError) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same Code, so sentinel-style
// comparisons via errors.Is(err, errors.New(CodeX, "")) work.
func (e *ReelVaultError) Is(target error) bool {
	other, ok := target.(*ReelVaultError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// JSON renders the error for the external boundary.
func (e *ReelVaultError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"code":%q,"message":"failed to marshal error detail"}`, e.Code)
	}
	return string(data)
}

// New creates a ReelVaultError with category and retryability defaulted
// from its code.
func New(code ErrorCode, message string) *ReelVaultError {
	return &ReelVaultError{
		Code:      code,
		Category:  CategoryOf(code),
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]string),
		Retryable: IsRetryableByDefault(code),
	}
}

// Wrap creates a ReelVaultError around an existing error.
func Wrap(code ErrorCode, message string, cause error) *ReelVaultError {
	return New(code, message).WithCause(cause)
}

// CategoryOf determines the category for a code based on its prefix.
func CategoryOf(code ErrorCode) Category {
	s := string(code)
	switch {
	case strings.HasPrefix(s, "OBJSTORE_"):
		return CategoryObjectStore
	case strings.HasPrefix(s, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(s, "FILE_"):
		return CategoryFile
	case strings.HasPrefix(s, "AUTH_"):
		return CategoryAuthentication
	case strings.HasPrefix(s, "DATABASE_"):
		return CategoryDatabase
	case strings.HasPrefix(s, "LIFECYCLE_"):
		return CategoryLifecycle
	default:
		return CategoryOther
	}
}

// IsRetryableByDefault implements the retry policy: only object-store
// errors are retried by the caller; every other category surfaces
// immediately.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeObjectStoreNetwork, ErrCodeObjectStoreThrottled,
		ErrCodeObjectStoreProtocol, ErrCodeObjectStoreTimeout:
		return true
	default:
		return false
	}
}

// CaptureStack captures the current stack trace, skipping skip frames above
// the caller.
func CaptureStack(skip int) string {
	const depth = 16
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithContext attaches a contextual key/value pair and returns the error for
// chaining.
func (e *ReelVaultError) WithContext(key, value string) *ReelVaultError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the originating component name.
func (e *ReelVaultError) WithComponent(component string) *ReelVaultError {
	e.Component = component
	return e
}

// WithOperation sets the specific operation that failed.
func (e *ReelVaultError) WithOperation(operation string) *ReelVaultError {
	e.Operation = operation
	return e
}

// WithCause attaches an underlying cause.
func (e *ReelVaultError) WithCause(cause error) *ReelVaultError {
	e.Cause = cause
	return e
}

// WithStack captures and attaches the current stack trace.
func (e *ReelVaultError) WithStack() *ReelVaultError {
	e.Stack = CaptureStack(1)
	return e
}
