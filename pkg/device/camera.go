package device

import "context"

// Camera captures still frames.
type Camera interface {
	// Capture returns one JPEG frame. Failures are *core.Error values of
	// kind PermissionDenied or DeviceNotFound.
	Capture(ctx context.Context) ([]byte, error)
}
