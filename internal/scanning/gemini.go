package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model name is configured
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	// Extraction wants the most literal reading of the menu
	model.SetTemperature(0.1)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// ScanMenu sends the menu image and prompt to Gemini and returns its text answer
func (g *Gemini) ScanMenu(ctx context.Context, imageData []byte, contentType string) (string, error) {
	finalImageData, mimeType, err := prepareImageData(imageData, contentType, geminiImageTypes)
	if err != nil {
		return "", err
	}

	// genai.ImageData wants the format suffix ("png"), not the MIME type
	parts := []genai.Part{
		genai.Text(MenuPrompt),
		genai.ImageData(strings.TrimPrefix(mimeType, "image/"), finalImageData),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}
	return responseText.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
