package lookup

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jszwec/csvutil"

	"github.com/zombor/nutriscan/internal/nutrition"
)

// productRow is one line of a catalog seed file. Values are per serving.
type productRow struct {
	Code        string   `csv:"code"`
	Name        string   `csv:"name"`
	Brand       string   `csv:"brand,omitempty"`
	ServingSize *float64 `csv:"serving_size,omitempty"`
	ServingUnit string   `csv:"serving_unit,omitempty"`
	Calories    float64  `csv:"calories"`
	Protein     float64  `csv:"protein"`
	Carbs       float64  `csv:"carbs"`
	Fat         float64  `csv:"fat"`
	Sodium      *float64 `csv:"sodium,omitempty"`
	Sugar       *float64 `csv:"sugar,omitempty"`
	Fiber       *float64 `csv:"fiber,omitempty"`
}

// ImportResult counts the rows of a seed file
type ImportResult struct {
	Imported int
	Skipped  int
}

// ImportProducts seeds the catalog from CSV with a header row. Rows that
// fail validation are skipped and logged; decoding errors stop the import.
func (s *Service) ImportProducts(r io.Reader) (ImportResult, error) {
	var result ImportResult

	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		return result, fmt.Errorf("reading seed header: %w", err)
	}

	for line := 2; ; line++ {
		var row productRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return result, fmt.Errorf("decoding seed line %d: %w", line, err)
		}

		if _, err := s.SaveProduct(row.product()); err != nil {
			if !errors.Is(err, ErrInvalidProduct) {
				return result, err
			}
			slog.Warn("Skipping seed row", "line", line, "code", row.Code, "error", err)
			result.Skipped++
			continue
		}
		result.Imported++
	}

	slog.Info("Catalog seeded", "imported", result.Imported, "skipped", result.Skipped)
	return result, nil
}

func (r productRow) product() *nutrition.Product {
	return &nutrition.Product{
		Code:        nutrition.Code(r.Code),
		Name:        r.Name,
		Brand:       r.Brand,
		ServingSize: r.ServingSize,
		ServingUnit: r.ServingUnit,
		Calories:    r.Calories,
		Protein:     r.Protein,
		Carbs:       r.Carbs,
		Fat:         r.Fat,
		Sodium:      r.Sodium,
		Sugar:       r.Sugar,
		Fiber:       r.Fiber,
		Provenance:  nutrition.ProvenanceCatalog,
	}
}
