//go:build !linux

package camera

import (
	"context"
	"fmt"
	"image"
	"runtime"
)

// V4L2Config selects the capture device and preferred frame size
type V4L2Config struct {
	Device string
	Width  int
	Height int
}

// V4L2Source is unavailable outside linux
type V4L2Source struct {
	cfg V4L2Config
}

// NewV4L2Source creates a source that always reports the device as unavailable
func NewV4L2Source(cfg V4L2Config) *V4L2Source {
	return &V4L2Source{cfg: cfg}
}

func (s *V4L2Source) Acquire(ctx context.Context) error {
	return fmt.Errorf("%w: video4linux is not supported on %s", ErrDeviceUnavailable, runtime.GOOS)
}

func (s *V4L2Source) CurrentFrame() (image.Image, error) {
	return nil, ErrNotAcquired
}

func (s *V4L2Source) Release() error {
	return nil
}
