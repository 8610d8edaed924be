package decode

import (
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNoSymbol is returned when a frame holds no readable symbol
var ErrNoSymbol = errors.New("no symbol found")

// Decoder finds a machine-readable symbol in an image
type Decoder interface {
	Decode(img image.Image) (string, error)
}

// MultiFormat decodes 1D product codes (EAN, UPC, Code 128, ...) and QR codes
type MultiFormat struct {
	hints   map[gozxing.DecodeHintType]interface{}
	readers []gozxing.Reader
}

// NewMultiFormat creates a decoder that tries every supported reader with
// try-harder enabled
func NewMultiFormat() *MultiFormat {
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	return &MultiFormat{
		hints: hints,
		readers: []gozxing.Reader{
			oned.NewMultiFormatUPCEANReader(hints),
			oned.NewCode128Reader(),
			oned.NewCode39Reader(),
			oned.NewITFReader(),
			qrcode.NewQRCodeReader(),
		},
	}
}

// Decode returns the text of the first symbol any reader finds
func (m *MultiFormat) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarizing frame: %w", err)
	}

	for _, reader := range m.readers {
		result, err := reader.Decode(bmp, m.hints)
		reader.Reset()
		if err != nil {
			continue
		}
		if text := result.GetText(); text != "" {
			return text, nil
		}
	}
	return "", ErrNoSymbol
}
