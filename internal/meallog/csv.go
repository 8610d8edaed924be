package meallog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/zombor/nutriscan/internal/nutrition"
)

type csvRow struct {
	CreatedAt     time.Time `csv:"created_at"`
	Code          string    `csv:"code"`
	Name          string    `csv:"name"`
	Multiplier    float64   `csv:"multiplier"`
	Calories      int       `csv:"calories"`
	Protein       int       `csv:"protein"`
	Carbs         int       `csv:"carbs"`
	Fat           int       `csv:"fat"`
	Sodium        int       `csv:"sodium"`
	Sugar         int       `csv:"sugar"`
	ServingWeight string    `csv:"serving_weight"`
	Provenance    string    `csv:"provenance"`
	SourceNote    string    `csv:"source_note"`
	ImageURL      string    `csv:"image_url"`
}

func toRow(e nutrition.MealEntry) csvRow {
	return csvRow{
		CreatedAt:     e.CreatedAt,
		Code:          string(e.Code),
		Name:          e.Name,
		Multiplier:    e.Multiplier,
		Calories:      e.Calories,
		Protein:       e.Protein,
		Carbs:         e.Carbs,
		Fat:           e.Fat,
		Sodium:        e.Sodium,
		Sugar:         e.Sugar,
		ServingWeight: e.ServingWeight,
		Provenance:    string(e.Provenance),
		SourceNote:    e.SourceNote,
		ImageURL:      e.ImageURL,
	}
}

// CSV writes entries as spreadsheet rows
type CSV struct {
	mu     sync.Mutex
	w      *csv.Writer
	enc    *csvutil.Encoder
	closer io.Closer
}

// NewCSV writes rows to w, preceded by a header row when header is true
func NewCSV(w io.Writer, header bool) *CSV {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = header
	return &CSV{w: cw, enc: enc}
}

// OpenCSVFile appends rows to path. The header is written only when the
// file is new or empty.
func OpenCSVFile(path string) (*CSV, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening meal log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading meal log: %w", err)
	}
	c := NewCSV(f, info.Size() == 0)
	c.closer = f
	return c, nil
}

// Emit appends the entry as a row
func (c *CSV) Emit(ctx context.Context, entry nutrition.MealEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(toRow(entry)); err != nil {
		return fmt.Errorf("encoding meal entry: %w", err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("writing meal entry: %w", err)
	}
	slog.Info("Meal entry logged", "name", entry.Name, "calories", entry.Calories, "provenance", entry.Provenance)
	return nil
}

// Close closes the underlying file, if any
func (c *CSV) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
