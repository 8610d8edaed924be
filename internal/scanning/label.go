package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// labelModel is a vision backend asked to transcribe one prepared label.
// The image is always PNG; the reply is the model's raw text.
type labelModel interface {
	transcribe(ctx context.Context, label []byte) (string, error)
}

// readLabel normalizes the uploaded photo, has the model transcribe it
// within budget, and parses the reply into LabelData.
func readLabel(ctx context.Context, m labelModel, budget time.Duration, imageData []byte, contentType string) (*LabelData, error) {
	label, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	reply, err := m.transcribe(ctx, label)
	if err != nil {
		return nil, err
	}

	data, err := parseLabelJSON(reply)
	if err != nil {
		return nil, fmt.Errorf("parsing label data: %w", err)
	}
	slog.Debug("Label read", "name", data.Name, "calories", data.Calories, "confidence", data.Confidence)
	return data, nil
}
