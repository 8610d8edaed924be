package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	return img
}

var _ = Describe("prepareImageData", func() {
	var (
		input       []byte
		contentType string
		output      []byte
		mimeType    string
		err         error
	)

	JustBeforeEach(func() {
		output, mimeType, err = prepareImageData(input, contentType)
	})

	When("given a JPEG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, solidImage(40, 20), nil)).To(Succeed())
			input = buf.Bytes()
			contentType = "image/jpeg"
		})

		It("returns PNG data of the same size", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(mimeType).To(Equal("image/png"))
			img, decodeErr := png.Decode(bytes.NewReader(output))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(40))
			Expect(img.Bounds().Dy()).To(Equal(20))
		})
	})

	When("given an oversized image", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, solidImage(3200, 1600))).To(Succeed())
			input = buf.Bytes()
			contentType = "image/png"
		})

		It("scales the longest edge down", func() {
			Expect(err).NotTo(HaveOccurred())
			img, decodeErr := png.Decode(bytes.NewReader(output))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(maxLabelEdge))
			Expect(img.Bounds().Dy()).To(Equal(maxLabelEdge / 2))
		})
	})

	When("no content type is given", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, solidImage(8, 8), nil)).To(Succeed())
			input = buf.Bytes()
			contentType = ""
		})

		It("sniffs the format", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(mimeType).To(Equal("image/png"))
		})
	})

	When("given data that is not an image", func() {
		BeforeEach(func() {
			input = []byte("definitely not an image")
			contentType = "image/jpeg"
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
		})
	})
})

var _ = Describe("downscale", func() {
	It("keeps small images untouched", func() {
		img := solidImage(10, 10)
		Expect(downscale(img, 100)).To(BeIdenticalTo(img))
	})

	It("scales portrait images by height", func() {
		out := downscale(solidImage(50, 200), 100)
		Expect(out.Bounds().Dx()).To(Equal(25))
		Expect(out.Bounds().Dy()).To(Equal(100))
	})
})

var _ = Describe("isHEICFormat", func() {
	It("detects the heic brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEICFormat(data)).To(BeTrue())
	})

	It("rejects short data", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})

	It("rejects other brands", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypisom0000")...)
		Expect(isHEICFormat(data)).To(BeFalse())
	})
})
