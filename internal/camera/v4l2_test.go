//go:build linux

package camera

import (
	"github.com/blackjack/webcam"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("V4L2Source", func() {
	Describe("yuyvToImage", func() {
		It("should unpack luma and chroma", func() {
			// Two pixels: Y0 U Y1 V
			frame := []byte{10, 20, 30, 40}
			img, err := yuyvToImage(frame, 2, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(2))
		})

		It("should reject short frames", func() {
			_, err := yuyvToImage([]byte{1, 2}, 2, 2)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("pickFormat", func() {
		It("should prefer Motion-JPEG", func() {
			pf, name, ok := pickFormat(map[webcam.PixelFormat]string{1: formatYUYV, 2: formatMJPEG})
			Expect(ok).To(BeTrue())
			Expect(name).To(Equal(formatMJPEG))
			Expect(pf).To(Equal(webcam.PixelFormat(2)))
		})

		It("should report no match for unsupported formats", func() {
			_, _, ok := pickFormat(map[webcam.PixelFormat]string{1: "H.264"})
			Expect(ok).To(BeFalse())
		})
	})

	Describe("pickSize", func() {
		It("should pick the largest size within the configured bounds", func() {
			s := NewV4L2Source(V4L2Config{Width: 1280, Height: 720})
			w, h := s.pickSize([]webcam.FrameSize{
				{MaxWidth: 640, MaxHeight: 480},
				{MaxWidth: 1280, MaxHeight: 720},
				{MaxWidth: 1920, MaxHeight: 1080},
			})
			Expect(w).To(Equal(uint32(1280)))
			Expect(h).To(Equal(uint32(720)))
		})
	})

	It("returns ErrNotAcquired for frames before Acquire", func() {
		_, err := NewV4L2Source(V4L2Config{}).CurrentFrame()
		Expect(err).To(MatchError(ErrNotAcquired))
	})

	It("should release safely without a device", func() {
		Expect(NewV4L2Source(V4L2Config{}).Release()).To(Succeed())
	})
})
