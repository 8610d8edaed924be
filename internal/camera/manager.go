package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"log/slog"
	"sync"
)

// Manager owns the exclusive video stream. It never hands out the
// FrameSource itself, so every acquisition and release goes through it.
type Manager struct {
	mu           sync.Mutex
	source       FrameSource
	active       bool
	acquisitions int
	releases     int
}

// NewManager creates a Manager around source
func NewManager(source FrameSource) *Manager {
	return &Manager{source: source}
}

// Acquire starts the stream. Device failures are reported as
// ErrPermissionDenied or ErrDeviceUnavailable.
func (m *Manager) Acquire(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return ErrBusy
	}

	if err := m.source.Acquire(ctx); err != nil {
		classified := classify(err)
		slog.Error("Failed to acquire camera", "error", err)
		return classified
	}

	m.active = true
	m.acquisitions++
	slog.Debug("Camera acquired", "acquisitions", m.acquisitions)
	return nil
}

// Release stops the stream. It is a no-op when nothing is held.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return
	}
	m.active = false
	m.releases++

	if err := m.source.Release(); err != nil {
		slog.Warn("Failed to release camera cleanly", "error", err)
	}
	slog.Debug("Camera released", "releases", m.releases)
}

// Active reports whether a stream is currently held
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Frame returns the current frame of the active stream
func (m *Manager) Frame() (image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return nil, ErrNotAcquired
	}
	return m.source.CurrentFrame()
}

// CaptureStill encodes the current frame as a JPEG
func (m *Manager) CaptureStill() (*Still, error) {
	img, err := m.Frame()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding still: %w", err)
	}
	return &Still{Data: buf.Bytes(), ContentType: "image/jpeg"}, nil
}

// Acquisitions returns how many times the stream has been acquired
func (m *Manager) Acquisitions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquisitions
}

// Releases returns how many times an active stream has been released
func (m *Manager) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}

// classify maps source errors onto the two device error kinds
func classify(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrDeviceUnavailable):
		return err
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
}
