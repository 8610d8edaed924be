package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"os"
	"sync"
)

// ImageSource serves a fixed image as the camera feed. WarmupFrames
// reads return ErrFrameNotReady before the image is served, mimicking
// a real device settling after it starts streaming.
type ImageSource struct {
	mu           sync.Mutex
	img          image.Image
	path         string
	WarmupFrames int
	remaining    int
	streaming    bool
}

// NewImageSource creates a source that always yields img
func NewImageSource(img image.Image) *ImageSource {
	return &ImageSource{img: img}
}

// NewImageFileSource creates a source that decodes path on Acquire
func NewImageFileSource(path string) *ImageSource {
	return &ImageSource{path: path}
}

// Acquire loads the image (if file backed) and starts serving frames
func (s *ImageSource) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		f, err := os.Open(s.path)
		if err != nil {
			return fmt.Errorf("opening image: %w", err)
		}
		defer f.Close()

		img, _, err := image.Decode(f)
		if err != nil {
			return fmt.Errorf("%w: decoding image: %v", ErrDeviceUnavailable, err)
		}
		s.img = img
	}
	if s.img == nil {
		return fmt.Errorf("%w: no image configured", ErrDeviceUnavailable)
	}

	s.remaining = s.WarmupFrames
	s.streaming = true
	return nil
}

// CurrentFrame returns the configured image once warm-up is over
func (s *ImageSource) CurrentFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.streaming {
		return nil, ErrNotAcquired
	}
	if s.remaining > 0 {
		s.remaining--
		return nil, ErrFrameNotReady
	}
	return s.img, nil
}

// Release stops serving frames
func (s *ImageSource) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = false
	return nil
}
