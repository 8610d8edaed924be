package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	// DefaultGeminiModel is used when no model name is given
	DefaultGeminiModel = "gemini-2.5-flash"

	geminiLabelBudget = 30 * time.Second
)

// Gemini reads labels with a hosted Gemini vision model.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.1)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(labelReaderRole)}}

	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) ScanLabel(ctx context.Context, imageData []byte, contentType string) (*LabelData, error) {
	return readLabel(ctx, g, geminiLabelBudget, imageData, contentType)
}

func (g *Gemini) transcribe(ctx context.Context, label []byte) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.ImageData("png", label), genai.Text(labelScanPrompt))
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	return candidateText(resp)
}

// candidateText joins the text parts of the first candidate
func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("gemini returned no label text")
	}
	return text.String(), nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}
