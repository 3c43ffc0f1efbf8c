package core

import (
	"context"
	"errors"
	"fmt"
)

// Kind categorizes errors surfaced by the chat client.
type Kind string

const (
	KindPermissionDenied Kind = "permission_denied"
	KindDeviceNotFound   Kind = "device_not_found"
	KindReadError        Kind = "read_error"
	KindRateLimited      Kind = "rate_limited"
	KindSafetyBlocked    Kind = "safety_blocked"
	KindNoImageReturned  Kind = "no_image_returned"
	KindNetwork          Kind = "network_error"
	KindCorrupted        Kind = "corrupted"
	KindUnknown          Kind = "unknown"
)

// Device names used in permission and device errors.
const (
	DeviceMicrophone = "microphone"
	DeviceCamera     = "camera"
)

// Error is the error type shared by providers, devices and sessions.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Code    string
	// Device is set for PermissionDenied and DeviceNotFound.
	Device string
	// Hint overrides the default user-facing text.
	Hint       string
	RetryAfter *int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	out := fmt.Sprintf("%s: %s", e.Kind, msg)
	if e.Code != "" {
		out = fmt.Sprintf("%s (code: %s)", out, e.Code)
	}
	if e.Op != "" {
		out = e.Op + ": " + out
	}
	return out
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the retry policy may reattempt the call.
// Only rate limits are retried.
func (e *Error) IsRetryable() bool {
	return e.Kind == KindRateLimited
}

// NewError wraps err with a kind and operation name.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(op, message string) *Error {
	return &Error{Kind: KindRateLimited, Op: op, Message: message}
}

// NewNetworkError creates a network error.
func NewNetworkError(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// NewSafetyBlockedError creates a content policy error.
func NewSafetyBlockedError(op, reason string) *Error {
	return &Error{Kind: KindSafetyBlocked, Op: op, Message: "blocked by content policy", Code: reason}
}

// NewPermissionError creates a device permission error.
func NewPermissionError(device string, err error) *Error {
	return &Error{Kind: KindPermissionDenied, Op: device, Device: device, Err: err}
}

// NewDeviceNotFoundError creates a missing device error.
func NewDeviceNotFoundError(device string, err error) *Error {
	return &Error{Kind: KindDeviceNotFound, Op: device, Device: device, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRateLimited reports whether err is a rate limit.
func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}

// Messages for requests cut short by their context.
const (
	CanceledMessage = "The request was canceled."
	TimeoutMessage  = "The request took too long. Please try again."
)

// UserMessage converts err into the short text shown in an error entry.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.Canceled):
		return CanceledMessage
	case errors.Is(err, context.DeadlineExceeded):
		return TimeoutMessage
	}
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	if e.Hint != "" {
		return e.Hint
	}
	device := e.Device
	if device == "" {
		device = DeviceMicrophone
	}
	switch e.Kind {
	case KindPermissionDenied:
		if device == DeviceCamera {
			return "Camera access was denied. Please enable it in your system settings."
		}
		return "Microphone access was denied. Please enable it in your system settings."
	case KindDeviceNotFound:
		return fmt.Sprintf("No %s was found. Connect one and try again.", device)
	case KindReadError:
		return "Could not read the attached file."
	case KindRateLimited:
		return "The service is receiving too many requests. Please wait a moment and try again."
	case KindSafetyBlocked:
		return "This request was blocked by the content safety policy. Please rephrase it and try again."
	case KindNoImageReturned:
		return "Image generation failed. No image data received."
	case KindNetwork:
		return "Could not reach the service. Check your network connection and try again."
	case KindCorrupted:
		return "Saved data was unreadable and has been reset."
	default:
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return "Something went wrong."
	}
}
