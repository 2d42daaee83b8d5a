package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// extractPrompt asks for a verbatim transcription of the attached file.
const extractPrompt = "Extract and return the full, plain text content of this document. Do not summarize or add commentary."

// Extractor turns a raw document into plain text.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte, mimeType string) (string, error)
}

// GeminiExtractor sends the document inline to a Gemini model and returns its transcription.
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

func NewGeminiExtractor(client *genai.Client, model string) *GeminiExtractor {
	return &GeminiExtractor{client: client, model: model}
}

func (e *GeminiExtractor) Extract(ctx context.Context, filename string, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("document %s is empty", filename)
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(extractPrompt),
			genai.NewPartFromBytes(data, mimeType),
		}, genai.RoleUser),
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("generate content for %s: %w", filename, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("model returned no text")
	}
	return text, nil
}
