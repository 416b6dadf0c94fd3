package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// ErrUnavailable is returned when the model transport cannot be built.
var ErrUnavailable = errors.New("extract: model transport unavailable")

// ContentGenerator is the part of the genai models service the generator
// needs. It is satisfied by *genai.Models.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator is the Generator backed by Gemini.
type GeminiGenerator struct {
	models ContentGenerator
	model  string
	config *genai.GenerateContentConfig
}

// NewGeminiGenerator creates the Gemini client. It fails closed: without an
// API key it returns ErrUnavailable instead of a half-built client.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("NewGeminiGenerator: missing API key: %w", ErrUnavailable)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w: %v", ErrUnavailable, err)
	}
	return NewGeminiGeneratorWithModels(client.Models, model), nil
}

// NewGeminiGeneratorWithModels wraps an existing models service.
func NewGeminiGeneratorWithModels(models ContentGenerator, model string) *GeminiGenerator {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiGenerator{
		models: models,
		model:  model,
		config: &genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0),
			ResponseMIMEType: "application/json",
			ResponseSchema:   responseSchema(),
		},
	}
}

// Generate sends prompt and returns the raw model text. Errors are tagged
// with their kind.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		return "", classifyError(ctx, err)
	}
	text := resp.Text()
	if text == "" {
		return "", Permanent(0, errors.New("empty response from model"))
	}
	return text, nil
}

// classifyError tags err using the API status code or the network error
// type, never the message text.
func classifyError(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyStatus(apiErrPtr.Code, err)
	}

	// The caller's own deadline is spent, a retry cannot succeed.
	if ctx.Err() != nil {
		return Permanent(0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient(0, err)
	}
	return Permanent(0, err)
}

func classifyStatus(code int, err error) error {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return Transient(code, err)
	default:
		return Permanent(code, err)
	}
}
