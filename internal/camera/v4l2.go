//go:build linux

package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"

	"github.com/blackjack/webcam"
)

const (
	formatMJPEG = "Motion-JPEG"
	formatYUYV  = "YUYV 4:2:2"

	defaultWaitTimeout = 5
	defaultBuffers     = 4
)

// V4L2Config selects the capture device and preferred frame size
type V4L2Config struct {
	Device string
	Width  int
	Height int
}

// V4L2Source reads frames from a Video4Linux device
type V4L2Source struct {
	cfg V4L2Config

	mu     sync.Mutex
	cam    *webcam.Webcam
	format string
	width  int
	height int
	latest image.Image
	failed error
	stop   chan struct{}
	done   chan struct{}
}

// NewV4L2Source creates a source for cfg.Device (default /dev/video0)
func NewV4L2Source(cfg V4L2Config) *V4L2Source {
	if cfg.Device == "" {
		cfg.Device = "/dev/video0"
	}
	if cfg.Width == 0 {
		cfg.Width = 1280
	}
	if cfg.Height == 0 {
		cfg.Height = 720
	}
	return &V4L2Source{cfg: cfg}
}

// Acquire opens the device, negotiates a format and starts the capture goroutine
func (s *V4L2Source) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cam != nil {
		return ErrBusy
	}

	cam, err := webcam.Open(s.cfg.Device)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.cfg.Device, err)
	}

	pixelFormat, name, ok := pickFormat(cam.GetSupportedFormats())
	if !ok {
		cam.Close()
		return fmt.Errorf("%w: no supported pixel format on %s", ErrDeviceUnavailable, s.cfg.Device)
	}

	width, height := s.pickSize(cam.GetSupportedFrameSizes(pixelFormat))
	_, w, h, err := cam.SetImageFormat(pixelFormat, width, height)
	if err != nil {
		cam.Close()
		return fmt.Errorf("setting image format: %w", err)
	}

	if err := cam.SetBufferCount(defaultBuffers); err != nil {
		cam.Close()
		return fmt.Errorf("setting buffer count: %w", err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return fmt.Errorf("starting stream: %w", err)
	}

	s.cam = cam
	s.format = name
	s.width = int(w)
	s.height = int(h)
	s.latest = nil
	s.failed = nil
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.capture(cam, s.stop, s.done)

	slog.Info("Camera streaming", "device", s.cfg.Device, "format", name, "width", w, "height", h)
	return nil
}

// CurrentFrame returns the latest decoded frame
func (s *V4L2Source) CurrentFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cam == nil {
		return nil, ErrNotAcquired
	}
	if s.failed != nil {
		return nil, s.failed
	}
	if s.latest == nil {
		return nil, ErrFrameNotReady
	}
	return s.latest, nil
}

// Release stops the capture goroutine, then streaming, then closes the device
func (s *V4L2Source) Release() error {
	s.mu.Lock()
	cam, stop, done := s.cam, s.stop, s.done
	s.cam = nil
	s.latest = nil
	s.mu.Unlock()

	if cam == nil {
		return nil
	}

	close(stop)
	<-done

	if err := cam.StopStreaming(); err != nil {
		cam.Close()
		return fmt.Errorf("stopping stream: %w", err)
	}
	if err := cam.Close(); err != nil {
		return fmt.Errorf("closing device: %w", err)
	}
	return nil
}

// capture keeps the most recent frame decoded and drops the rest
func (s *V4L2Source) capture(cam *webcam.Webcam, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		err := cam.WaitForFrame(defaultWaitTimeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			s.fail(cam, fmt.Errorf("waiting for frame: %w", err))
			return
		}

		frame, index, err := cam.GetFrame()
		if err != nil {
			s.fail(cam, fmt.Errorf("reading frame: %w", err))
			return
		}
		if len(frame) == 0 {
			cam.ReleaseFrame(index)
			continue
		}

		img, err := s.decodeFrame(frame)
		cam.ReleaseFrame(index)
		if err != nil {
			slog.Debug("Dropping undecodable frame", "error", err)
			continue
		}

		s.mu.Lock()
		if s.cam == cam {
			s.latest = img
		}
		s.mu.Unlock()
	}
}

// fail records a stream-level error for CurrentFrame to report
func (s *V4L2Source) fail(cam *webcam.Webcam, err error) {
	slog.Error("Camera stream failed", "error", err)
	s.mu.Lock()
	if s.cam == cam {
		s.failed = err
	}
	s.mu.Unlock()
}

func (s *V4L2Source) decodeFrame(frame []byte) (image.Image, error) {
	switch s.format {
	case formatMJPEG:
		return jpeg.Decode(bytes.NewReader(frame))
	case formatYUYV:
		return yuyvToImage(frame, s.width, s.height)
	default:
		return nil, fmt.Errorf("unsupported format %q", s.format)
	}
}

// pickFormat prefers Motion-JPEG and falls back to YUYV
func pickFormat(formats map[webcam.PixelFormat]string) (webcam.PixelFormat, string, bool) {
	for _, want := range []string{formatMJPEG, formatYUYV} {
		for pf, desc := range formats {
			if desc == want {
				return pf, desc, true
			}
		}
	}
	return 0, "", false
}

// pickSize returns the largest discrete size not above the configured one
func (s *V4L2Source) pickSize(sizes []webcam.FrameSize) (uint32, uint32) {
	var bestW, bestH uint32
	for _, sz := range sizes {
		if sz.StepWidth != 0 || sz.StepHeight != 0 {
			// Stepwise ranges accept the configured size directly
			return uint32(s.cfg.Width), uint32(s.cfg.Height)
		}
		if int(sz.MaxWidth) > s.cfg.Width || int(sz.MaxHeight) > s.cfg.Height {
			continue
		}
		if sz.MaxWidth*sz.MaxHeight > bestW*bestH {
			bestW, bestH = sz.MaxWidth, sz.MaxHeight
		}
	}
	if bestW == 0 {
		return uint32(s.cfg.Width), uint32(s.cfg.Height)
	}
	return bestW, bestH
}

// yuyvToImage converts packed YUYV 4:2:2 into an image.YCbCr
func yuyvToImage(frame []byte, width, height int) (image.Image, error) {
	if len(frame) < width*height*2 {
		return nil, fmt.Errorf("short yuyv frame: %d bytes for %dx%d", len(frame), width, height)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := frame[y*width*2:]
		for x := 0; x < width; x += 2 {
			i := x * 2
			img.Y[y*img.YStride+x] = row[i]
			img.Y[y*img.YStride+x+1] = row[i+2]
			c := y*img.CStride + x/2
			img.Cb[c] = row[i+1]
			img.Cr[c] = row[i+3]
		}
	}
	return img, nil
}
