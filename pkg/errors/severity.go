// Package errors provides severity-aware error types.
package errors

import "fmt"

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// FleetError is a structured error with context.
type FleetError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	DeviceID    string   `json:"device_id,omitempty"`
	Recoverable bool     `json:"recoverable"`
}

func (e *FleetError) Error() string {
	if e.DeviceID != "" {
		return fmt.Sprintf("[%s] %s: %s (device: %s)", e.Severity, e.Code, e.Message, e.DeviceID)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

// Error codes
const (
	ErrCodeDeviceNotFound   = "DEVICE_NOT_FOUND"
	ErrCodeDuplicateDevice  = "DUPLICATE_DEVICE"
	ErrCodeInvalidDevice    = "INVALID_DEVICE"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeUnknownBackend   = "UNKNOWN_BACKEND"
	ErrCodeTelemetryWrite   = "TELEMETRY_WRITE_FAILED"
)

// NewDeviceNotFoundError creates an error for a missing device.
func NewDeviceNotFoundError(deviceID string) *FleetError {
	return &FleetError{
		Code:        ErrCodeDeviceNotFound,
		Message:     "device not found",
		Severity:    SeverityWarning,
		DeviceID:    deviceID,
		Recoverable: false,
	}
}

// NewDuplicateDeviceError creates an error for an ID collision on create.
func NewDuplicateDeviceError(deviceID string) *FleetError {
	return &FleetError{
		Code:        ErrCodeDuplicateDevice,
		Message:     "device already exists",
		Severity:    SeverityWarning,
		DeviceID:    deviceID,
		Recoverable: false,
	}
}

// NewInvalidDeviceError creates an error for a malformed device payload.
func NewInvalidDeviceError(deviceID, reason string) *FleetError {
	return &FleetError{
		Code:        ErrCodeInvalidDevice,
		Message:     reason,
		Severity:    SeverityError,
		DeviceID:    deviceID,
		Recoverable: false,
	}
}

// NewStoreUnavailableError wraps a backend connectivity failure.
func NewStoreUnavailableError(backend string, err error) *FleetError {
	return &FleetError{
		Code:        ErrCodeStoreUnavailable,
		Message:     fmt.Sprintf("%s store unavailable: %v", backend, err),
		Severity:    SeverityFatal,
		Recoverable: true,
	}
}

// NewUnknownBackendError reports an unrecognized REPO_BACKEND value.
func NewUnknownBackendError(backend string) *FleetError {
	return &FleetError{
		Code:        ErrCodeUnknownBackend,
		Message:     fmt.Sprintf("unknown repository backend %q", backend),
		Severity:    SeverityFatal,
		Recoverable: false,
	}
}

// NewTelemetryWriteError wraps a failed telemetry insert.
func NewTelemetryWriteError(deviceID string, err error) *FleetError {
	return &FleetError{
		Code:        ErrCodeTelemetryWrite,
		Message:     fmt.Sprintf("telemetry write failed: %v", err),
		Severity:    SeverityError,
		DeviceID:    deviceID,
		Recoverable: true,
	}
}

// IsNotFound reports whether err is a device-not-found error.
func IsNotFound(err error) bool {
	fe, ok := err.(*FleetError)
	return ok && fe.Code == ErrCodeDeviceNotFound
}

// IsDuplicate reports whether err is an ID collision on create.
func IsDuplicate(err error) bool {
	fe, ok := err.(*FleetError)
	return ok && fe.Code == ErrCodeDuplicateDevice
}
