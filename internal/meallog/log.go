package meallog

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/zombor/nutriscan/internal/nutrition"
)

// Log is a destination for confirmed meal entries
type Log interface {
	Emit(ctx context.Context, entry nutrition.MealEntry) error
	Close() error
}

// Open picks the file format from the extension: .csv for CSV, anything
// else for JSON lines
func Open(path string) (Log, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return OpenCSVFile(path)
	}
	return OpenFile(path)
}

// Tee writes every entry to Primary and then to each mirror. Only a
// Primary failure is returned, so a retry never duplicates the record.
type Tee struct {
	Primary Log
	Mirrors []Log
}

// Emit writes to the primary log, then the mirrors
func (t Tee) Emit(ctx context.Context, entry nutrition.MealEntry) error {
	if err := t.Primary.Emit(ctx, entry); err != nil {
		return err
	}
	for _, m := range t.Mirrors {
		if err := m.Emit(ctx, entry); err != nil {
			slog.Warn("Failed to mirror meal entry", "name", entry.Name, "error", err)
		}
	}
	return nil
}

// Close closes every log
func (t Tee) Close() error {
	errs := []error{t.Primary.Close()}
	for _, m := range t.Mirrors {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
