package meallog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/zombor/nutriscan/internal/nutrition"
)

// JSONLines appends one JSON document per confirmed entry
type JSONLines struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewJSONLines writes entries to w
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w}
}

// OpenFile appends entries to the file at path, creating it if needed
func OpenFile(path string) (*JSONLines, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening meal log: %w", err)
	}
	return &JSONLines{w: f, closer: f}, nil
}

// Emit writes the entry as a single line
func (j *JSONLines) Emit(ctx context.Context, entry nutrition.MealEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling meal entry: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(data); err != nil {
		return fmt.Errorf("writing meal entry: %w", err)
	}
	slog.Info("Meal entry logged", "name", entry.Name, "calories", entry.Calories, "provenance", entry.Provenance)
	return nil
}

// Close closes the underlying file, if any
func (j *JSONLines) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}
