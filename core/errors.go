package core

import (
	"errors"
	"fmt"
)

var (
	ErrServerStart                    = errors.New("failed to start tcp server")
	ErrInvitationTimeout              = errors.New("invitation timeout")
	ErrPasswordRequired               = errors.New("password required")
	ErrInvitationUnknownResponse      = errors.New("invitation unknown response")
	ErrInvitationIncompatibleResponse = errors.New("invitation incompatible response")
	ErrAuthenticationTimeout          = errors.New("authentication timeout")
	ErrAuthenticationFailed           = errors.New("authentication failed")
	ErrAuthenticationUnknownResponse  = errors.New("authentication unknown response")
	ErrConnectionTimeout              = errors.New("connection timeout")
	ErrUploadTimeout                  = errors.New("upload timeout")
	ErrUploadUnknown                  = errors.New("upload unknown error")
)

var (
	ErrScanFailure     = errors.New("unknown error while scanning for devices")
	ErrNewScanRequired = errors.New("a new scan is required")
	ErrDeviceNotFound  = errors.New("device not found")
	ErrNoDevices       = errors.New("no devices found")
	ErrFileUnavailable = errors.New("firmware file unavailable")
	ErrCanceled        = errors.New("canceled")
	ErrInvalidPort     = errors.New("port must be a number between 1 and 65535")
)

// PhaseError wraps a transport failure with the phase it happened in.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
