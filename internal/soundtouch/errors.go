package soundtouch

import "fmt"

// DeviceTimeoutError indicates a control request timed out.
type DeviceTimeoutError struct {
	Endpoint string
}

func (e *DeviceTimeoutError) Error() string {
	return fmt.Sprintf("soundtouch request %s timed out", e.Endpoint)
}

// DeviceUnreachableError indicates the device could not be reached at all.
type DeviceUnreachableError struct {
	Endpoint string
	Err      error
}

func (e *DeviceUnreachableError) Error() string {
	return fmt.Sprintf("soundtouch request %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *DeviceUnreachableError) Unwrap() error {
	return e.Err
}

// DeviceRejectedError indicates the device answered with a non-2xx status.
type DeviceRejectedError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *DeviceRejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("soundtouch request %s rejected: http %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("soundtouch request %s rejected: http %d (%s)", e.Endpoint, e.Status, e.Body)
}
