// Package apperrors maps failures from the device and DLNA layers onto
// stable error codes for logs and CLI output.
package apperrors

import (
	"errors"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/dlna"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

type ErrorCode string

const (
	ErrorCodeInternalError     ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError   ErrorCode = "VALIDATION_ERROR"
	ErrorCodeDeviceNotFound    ErrorCode = "DEVICE_NOT_FOUND"
	ErrorCodeDeviceTimeout     ErrorCode = "DEVICE_TIMEOUT"
	ErrorCodeDeviceUnreachable ErrorCode = "DEVICE_UNREACHABLE"
	ErrorCodeDeviceRejected    ErrorCode = "DEVICE_REJECTED"
	ErrorCodeSOAPFault         ErrorCode = "SOAP_FAULT"
)

// ErrDeviceNotFound marks lookups that matched no known device. Wrap it with
// fmt.Errorf("%w: ...") to carry the identifier.
var ErrDeviceNotFound = errors.New("device not found")

// ErrValidation marks bad caller input.
var ErrValidation = errors.New("invalid argument")

// Classify buckets err into an ErrorCode. Unrecognized errors are internal.
func Classify(err error) ErrorCode {
	var timeoutErr *soundtouch.DeviceTimeoutError
	var unreachableErr *soundtouch.DeviceUnreachableError
	var rejectedErr *soundtouch.DeviceRejectedError
	var faultErr *dlna.SOAPFaultError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDeviceNotFound):
		return ErrorCodeDeviceNotFound
	case errors.Is(err, ErrValidation):
		return ErrorCodeValidationError
	case errors.As(err, &timeoutErr):
		return ErrorCodeDeviceTimeout
	case errors.As(err, &unreachableErr):
		return ErrorCodeDeviceUnreachable
	case errors.As(err, &rejectedErr):
		return ErrorCodeDeviceRejected
	case errors.As(err, &faultErr):
		return ErrorCodeSOAPFault
	default:
		return ErrorCodeInternalError
	}
}

// ExitCode maps an ErrorCode to a process exit status so scripts can branch
// on the failure class.
func ExitCode(code ErrorCode) int {
	switch code {
	case "":
		return 0
	case ErrorCodeValidationError:
		return 2
	case ErrorCodeDeviceNotFound:
		return 3
	case ErrorCodeDeviceTimeout, ErrorCodeDeviceUnreachable:
		return 4
	case ErrorCodeDeviceRejected, ErrorCodeSOAPFault:
		return 5
	default:
		return 1
	}
}
