package editor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/nutriscan/internal/nutrition"
)

const (
	// MinMultiplier is the smallest serving multiplier
	MinMultiplier = 0.5

	// MultiplierStep is the granularity of the serving multiplier
	MultiplierStep = 0.5
)

var (
	// ErrInvalidMultiplier is returned for multipliers below 0.5 or off the 0.5 grid
	ErrInvalidMultiplier = errors.New("multiplier must be a multiple of 0.5 and at least 0.5")

	// ErrNegativeValue is returned when a nutrient is set below zero
	ErrNegativeValue = errors.New("nutrient values must not be negative")
)

// Totals are per-nutrient display values for the current multiplier
type Totals struct {
	Calories int
	Protein  int
	Carbs    int
	Fat      int
	Sodium   int
	Sugar    int
}

// Editor holds a mutable working copy of a product and a serving multiplier
type Editor struct {
	product    *nutrition.Product
	multiplier float64
}

// New creates an editor over a copy of product with multiplier 1
func New(product *nutrition.Product) *Editor {
	return &Editor{
		product:    product.Clone(),
		multiplier: 1,
	}
}

// Product returns a copy of the edited per-serving product
func (e *Editor) Product() *nutrition.Product {
	return e.product.Clone()
}

// Multiplier returns the current serving multiplier
func (e *Editor) Multiplier() float64 {
	return e.multiplier
}

// SetMultiplier sets the serving multiplier
func (e *Editor) SetMultiplier(m float64) error {
	if math.IsNaN(m) || math.IsInf(m, 0) || m < MinMultiplier {
		return ErrInvalidMultiplier
	}
	if steps := m / MultiplierStep; steps != math.Trunc(steps) {
		return ErrInvalidMultiplier
	}
	e.multiplier = m
	return nil
}

// Increment raises the multiplier by one step
func (e *Editor) Increment() {
	e.multiplier += MultiplierStep
}

// Decrement lowers the multiplier by one step, never below the minimum
func (e *Editor) Decrement() {
	e.multiplier = math.Max(MinMultiplier, e.multiplier-MultiplierStep)
}

func (e *Editor) SetName(name string) {
	e.product.Name = strings.TrimSpace(name)
}

func (e *Editor) SetCalories(v float64) error {
	return setRequired(&e.product.Calories, v)
}

func (e *Editor) SetProtein(v float64) error {
	return setRequired(&e.product.Protein, v)
}

func (e *Editor) SetCarbs(v float64) error {
	return setRequired(&e.product.Carbs, v)
}

func (e *Editor) SetFat(v float64) error {
	return setRequired(&e.product.Fat, v)
}

func (e *Editor) SetSodium(v float64) error {
	return setOptional(&e.product.Sodium, v)
}

func (e *Editor) SetSugar(v float64) error {
	return setOptional(&e.product.Sugar, v)
}

// Set updates a field by name, for text-driven front ends
func (e *Editor) Set(field, value string) error {
	field = strings.ToLower(strings.TrimSpace(field))
	if field == "name" {
		e.SetName(value)
		return nil
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}

	switch field {
	case "calories":
		return e.SetCalories(v)
	case "protein":
		return e.SetProtein(v)
	case "carbs":
		return e.SetCarbs(v)
	case "fat":
		return e.SetFat(v)
	case "sodium":
		return e.SetSodium(v)
	case "sugar":
		return e.SetSugar(v)
	default:
		return fmt.Errorf("unknown field %q", field)
	}
}

// Totals scales every nutrient by the multiplier, rounding each independently
func (e *Editor) Totals() Totals {
	return Totals{
		Calories: e.scale(e.product.Calories),
		Protein:  e.scale(e.product.Protein),
		Carbs:    e.scale(e.product.Carbs),
		Fat:      e.scale(e.product.Fat),
		Sodium:   e.scale(valueOrZero(e.product.Sodium)),
		Sugar:    e.scale(valueOrZero(e.product.Sugar)),
	}
}

// Finalize builds the meal-log record for the current edits
func (e *Editor) Finalize(now time.Time) nutrition.MealEntry {
	t := e.Totals()
	p := e.product

	name := p.Name
	if name == "" {
		name = "Unknown product"
	}

	entry := nutrition.MealEntry{
		Code:       p.Code,
		Name:       name,
		Calories:   t.Calories,
		Protein:    t.Protein,
		Carbs:      t.Carbs,
		Fat:        t.Fat,
		Sodium:     t.Sodium,
		Sugar:      t.Sugar,
		Multiplier: e.multiplier,
		SourceNote: sourceNote(p),
		ImageURL:   p.ImageURL,
		Provenance: p.Provenance,
		CreatedAt:  now,
	}
	if p.ServingSize != nil {
		unit := p.ServingUnit
		if unit == "" {
			unit = "g"
		}
		weight := strconv.FormatFloat(*p.ServingSize*e.multiplier, 'f', -1, 64)
		entry.ServingWeight = weight + " " + unit
	}
	return entry
}

func (e *Editor) scale(base float64) int {
	return int(math.Round(base * e.multiplier))
}

func sourceNote(p *nutrition.Product) string {
	switch p.Provenance {
	case nutrition.ProvenanceCatalog:
		return fmt.Sprintf("Barcode %s (catalog)", p.Code)
	case nutrition.ProvenancePublicDatabase:
		return fmt.Sprintf("Barcode %s (public database)", p.Code)
	case nutrition.ProvenanceAIEstimate:
		if p.Confidence != nil {
			return fmt.Sprintf("AI estimate from label photo (confidence %d%%)", *p.Confidence)
		}
		return "AI estimate from label photo"
	}
	return ""
}

func setRequired(dst *float64, v float64) error {
	if v < 0 || math.IsNaN(v) {
		return ErrNegativeValue
	}
	*dst = v
	return nil
}

func setOptional(dst **float64, v float64) error {
	if v < 0 || math.IsNaN(v) {
		return ErrNegativeValue
	}
	*dst = &v
	return nil
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
