package scanning

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// rawLabel mirrors LabelData with loose numbers, since models sometimes
// quote numeric values
type rawLabel struct {
	Name        string      `json:"name"`
	Brand       string      `json:"brand"`
	ServingSize interface{} `json:"serving_size"`
	ServingUnit string      `json:"serving_unit"`
	Calories    interface{} `json:"calories"`
	Protein     interface{} `json:"protein"`
	Carbs       interface{} `json:"carbs"`
	Fat         interface{} `json:"fat"`
	Sodium      interface{} `json:"sodium"`
	Sugar       interface{} `json:"sugar"`
	Fiber       interface{} `json:"fiber"`
	Confidence  interface{} `json:"confidence"`
}

// parseLabelJSON parses the JSON response from a model
func parseLabelJSON(text string) (*LabelData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var raw rawLabel
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data := &LabelData{
		Name:        strings.TrimSpace(raw.Name),
		Brand:       strings.TrimSpace(raw.Brand),
		ServingUnit: strings.TrimSpace(raw.ServingUnit),
		Calories:    required(raw.Calories),
		Protein:     required(raw.Protein),
		Carbs:       required(raw.Carbs),
		Fat:         required(raw.Fat),
		Sodium:      optional(raw.Sodium),
		Sugar:       optional(raw.Sugar),
		Fiber:       optional(raw.Fiber),
	}

	if size := optional(raw.ServingSize); size != nil && *size > 0 {
		data.ServingSize = size
		if data.ServingUnit == "" {
			data.ServingUnit = "g"
		}
	}

	if data.Name == "" {
		data.Name = "Unknown product"
	}

	confidence, ok := toFloat(raw.Confidence)
	if !ok {
		confidence = 0
	}
	data.Confidence = int(math.Round(math.Max(0, math.Min(100, confidence))))

	return data, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimRight(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ% ")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return toFloat(f)
	default:
		return 0, false
	}
}

// required clamps missing and negative values to zero
func required(v interface{}) float64 {
	f, ok := toFloat(v)
	if !ok || f < 0 {
		return 0
	}
	return f
}

// optional keeps missing values absent and clamps negatives to zero
func optional(v interface{}) *float64 {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	if f < 0 {
		f = 0
	}
	return &f
}
