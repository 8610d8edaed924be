package scanning

import "context"

// LabelData contains the values read from a nutrition facts label. Values
// are per serving as printed; Sodium is in milligrams.
type LabelData struct {
	Name        string   `json:"name"`
	Brand       string   `json:"brand"`
	ServingSize *float64 `json:"serving_size"`
	ServingUnit string   `json:"serving_unit"`
	Calories    float64  `json:"calories"`
	Protein     float64  `json:"protein"`
	Carbs       float64  `json:"carbs"`
	Fat         float64  `json:"fat"`
	Sodium      *float64 `json:"sodium"`
	Sugar       *float64 `json:"sugar"`
	Fiber       *float64 `json:"fiber"`
	Confidence  int      `json:"confidence"` // 0-100
}

// Scanner defines the interface for label scanning operations
type Scanner interface {
	// ScanLabel reads a label photo and extracts nutrition values
	ScanLabel(ctx context.Context, imageData []byte, contentType string) (*LabelData, error)
	// Close closes the scanner and releases resources
	Close() error
}
