package decode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zombor/nutriscan/internal/camera"
)

const (
	// DefaultInterval is the pause between two frame samples
	DefaultInterval = 150 * time.Millisecond

	// MinInterval and MaxInterval bound configured sampling intervals
	MinInterval = 100 * time.Millisecond
	MaxInterval = 200 * time.Millisecond
)

// ErrRunning is returned when Start is called on a loop that is still sampling
var ErrRunning = errors.New("decode loop already running")

// FrameReader yields the current frame of an active stream
type FrameReader interface {
	Frame() (image.Image, error)
}

// Loop samples frames on a fixed interval until a symbol is decoded, a
// stream error occurs, or Stop is called. The scanning flag is checked
// before every reschedule, so Stop never has to interrupt a decode.
type Loop struct {
	frames   FrameReader
	decoder  Decoder
	interval time.Duration

	scanning atomic.Bool
	samples  atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewLoop creates a loop; a non-positive interval uses DefaultInterval
func NewLoop(frames FrameReader, decoder Decoder, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		frames:   frames,
		decoder:  decoder,
		interval: interval,
	}
}

// Start begins sampling. onCode is called at most once, with the first
// decoded symbol. onError is called at most once, for a stream-level
// error, and never after onCode.
func (l *Loop) Start(ctx context.Context, onCode func(string), onError func(error)) error {
	if !l.scanning.CompareAndSwap(false, true) {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	go l.run(ctx, cancel, onCode, onError)
	return nil
}

// Stop cancels sampling. It does not wait for an in-progress decode.
func (l *Loop) Stop() {
	l.scanning.Store(false)

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.mu.Unlock()
}

// Scanning reports whether the loop is still sampling
func (l *Loop) Scanning() bool {
	return l.scanning.Load()
}

// Samples returns the number of frames taken so far
func (l *Loop) Samples() int64 {
	return l.samples.Load()
}

func (l *Loop) run(ctx context.Context, cancel context.CancelFunc, onCode func(string), onError func(error)) {
	defer cancel()

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.scanning.Store(false)
			return
		case <-timer.C:
		}

		if !l.scanning.Load() {
			return
		}

		code, err := l.sample()
		switch {
		case err == nil:
			// Claim the flag first so a racing Stop cannot see a second success
			if l.scanning.CompareAndSwap(true, false) {
				onCode(code)
			}
			return
		case errors.Is(err, camera.ErrFrameNotReady), errors.Is(err, ErrNoSymbol):
		default:
			if l.scanning.CompareAndSwap(true, false) {
				slog.Error("Decode loop stopped on stream error", "error", err)
				if onError != nil {
					onError(err)
				}
			}
			return
		}

		if !l.scanning.Load() {
			return
		}
		timer.Reset(l.interval)
	}
}

// sample takes one frame and decodes it. Frame errors other than
// ErrFrameNotReady are returned as stream errors; decode failures of any
// kind, including panics, come back as ErrNoSymbol.
func (l *Loop) sample() (code string, err error) {
	l.samples.Add(1)

	frame, err := l.frames.Frame()
	if err != nil {
		if errors.Is(err, camera.ErrFrameNotReady) {
			return "", err
		}
		return "", fmt.Errorf("reading frame: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Debug("Decoder panicked on frame", "panic", r)
			code, err = "", ErrNoSymbol
		}
	}()

	code, err = l.decoder.Decode(frame)
	if err != nil {
		if !errors.Is(err, ErrNoSymbol) {
			slog.Debug("Frame decode failed", "error", err)
		}
		return "", ErrNoSymbol
	}
	return code, nil
}
