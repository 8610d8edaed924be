package nutrition

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinCodeLength is the shortest scanned or typed code that may be resolved
const MinCodeLength = 8

// LowConfidenceThreshold is the confidence below which an AI estimate needs manual review
const LowConfidenceThreshold = 70

var (
	// ErrCodeTooShort is returned for codes shorter than MinCodeLength after trimming
	ErrCodeTooShort = errors.New("code must be at least 8 characters")

	// ErrNotFound is returned when no tier knows a code
	ErrNotFound = errors.New("product not found")
)

// Code is a decoded or manually entered product symbol payload
type Code string

// NormalizeCode trims whitespace and validates the length of a code
func NormalizeCode(raw string) (Code, error) {
	code := strings.TrimSpace(raw)
	if len(code) < MinCodeLength {
		return "", ErrCodeTooShort
	}
	return Code(code), nil
}

// Provenance records where a product's nutrition data came from
type Provenance string

const (
	ProvenanceCatalog        Provenance = "catalog"
	ProvenancePublicDatabase Provenance = "public-database"
	ProvenanceAIEstimate     Provenance = "ai-estimate"
)

// Valid reports whether p is a known provenance
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceCatalog, ProvenancePublicDatabase, ProvenanceAIEstimate:
		return true
	}
	return false
}

// Product holds per-serving nutrition data for a resolved code.
// Sodium is in milligrams, every other nutrient in grams.
type Product struct {
	Code        Code       `json:"code"`
	Name        string     `json:"name"`
	Brand       string     `json:"brand,omitempty"`
	ServingSize *float64   `json:"serving_size,omitempty"`
	ServingUnit string     `json:"serving_unit,omitempty"`
	Calories    float64    `json:"calories"`
	Protein     float64    `json:"protein"`
	Carbs       float64    `json:"carbs"`
	Fat         float64    `json:"fat"`
	Sodium      *float64   `json:"sodium,omitempty"`
	Sugar       *float64   `json:"sugar,omitempty"`
	Fiber       *float64   `json:"fiber,omitempty"`
	Provenance  Provenance `json:"provenance"`
	Confidence  *int       `json:"confidence,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
}

// Validate checks the invariants every resolved product must hold
func (p *Product) Validate() error {
	if p.Calories < 0 || p.Protein < 0 || p.Carbs < 0 || p.Fat < 0 {
		return fmt.Errorf("nutrient values must not be negative")
	}
	for name, v := range map[string]*float64{"sodium": p.Sodium, "sugar": p.Sugar, "fiber": p.Fiber} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if !p.Provenance.Valid() {
		return fmt.Errorf("unknown provenance %q", p.Provenance)
	}
	if p.Provenance == ProvenanceAIEstimate && p.Confidence == nil {
		return fmt.Errorf("ai estimate requires a confidence")
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 100) {
		return fmt.Errorf("confidence %d out of range 0-100", *p.Confidence)
	}
	return nil
}

// LowConfidence reports whether the product carries a confidence below the review threshold
func (p *Product) LowConfidence() bool {
	return p.Confidence != nil && *p.Confidence < LowConfidenceThreshold
}

// Clone returns a deep copy so callers can edit without aliasing optional fields
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	c.ServingSize = cloneFloat(p.ServingSize)
	c.Sodium = cloneFloat(p.Sodium)
	c.Sugar = cloneFloat(p.Sugar)
	c.Fiber = cloneFloat(p.Fiber)
	if p.Confidence != nil {
		v := *p.Confidence
		c.Confidence = &v
	}
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float returns a pointer to v, for populating optional fields
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v
func Int(v int) *int {
	return &v
}

// MealEntry is the finalized record handed to the meal log
type MealEntry struct {
	Code          Code       `json:"code,omitempty"`
	Name          string     `json:"name"`
	Calories      int        `json:"calories"`
	Protein       int        `json:"protein"`
	Carbs         int        `json:"carbs"`
	Fat           int        `json:"fat"`
	Sodium        int        `json:"sodium"`
	Sugar         int        `json:"sugar"`
	ServingWeight string     `json:"serving_weight,omitempty"`
	Multiplier    float64    `json:"multiplier"`
	SourceNote    string     `json:"source_note,omitempty"`
	ImageURL      string     `json:"image_url,omitempty"`
	Provenance    Provenance `json:"provenance"`
	CreatedAt     time.Time  `json:"created_at"`
}
