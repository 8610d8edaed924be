package decode

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MultiFormat", func() {
	DescribeTable("decodes supported symbologies",
		func(writer gozxing.Writer, format gozxing.BarcodeFormat, contents string, width, height int) {
			matrix, err := writer.Encode(contents, format, width, height, nil)
			Expect(err).NotTo(HaveOccurred())

			code, err := NewMultiFormat().Decode(matrix)
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal(contents))
		},
		Entry("EAN-13", oned.NewEAN13Writer(), gozxing.BarcodeFormat_EAN_13, "4006381333931", 400, 120),
		Entry("UPC-A", oned.NewUPCAWriter(), gozxing.BarcodeFormat_UPC_A, "012345678905", 400, 120),
		Entry("Code 128", oned.NewCode128Writer(), gozxing.BarcodeFormat_CODE_128, "NUTRI-12345", 400, 120),
		Entry("Code 39", oned.NewCode39Writer(), gozxing.BarcodeFormat_CODE_39, "NUTRI42", 400, 120),
		Entry("QR", qrcode.NewQRCodeWriter(), gozxing.BarcodeFormat_QR_CODE, "8850001234567", 200, 200),
	)

	It("returns ErrNoSymbol for a blank frame", func() {
		blank := image.NewGray(image.Rect(0, 0, 200, 100))
		for i := range blank.Pix {
			blank.Pix[i] = 0xff
		}
		_, err := NewMultiFormat().Decode(blank)
		Expect(err).To(MatchError(ErrNoSymbol))
	})
})
