package camera

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrPermissionDenied is returned when the OS refuses access to the device
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrDeviceUnavailable is returned when the device is missing or busy
	ErrDeviceUnavailable = errors.New("camera device unavailable")

	// ErrFrameNotReady is returned while the stream is still warming up
	ErrFrameNotReady = errors.New("camera frame not ready")

	// ErrNotAcquired is returned when frames are read without an active stream
	ErrNotAcquired = errors.New("camera not acquired")

	// ErrBusy is returned when a second acquisition is attempted
	ErrBusy = errors.New("camera already acquired")
)

// FrameSource is the capability the capture pipeline needs from a camera
type FrameSource interface {
	// Acquire opens the device and starts streaming
	Acquire(ctx context.Context) error

	// CurrentFrame returns the most recent frame
	CurrentFrame() (image.Image, error)

	// Release stops streaming and closes the device
	Release() error
}

// Still is an encoded frame captured for label analysis
type Still struct {
	Data        []byte
	ContentType string
}
