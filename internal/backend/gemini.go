package backend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.0-flash"

// contentGenerator is the subset of genai.Models used by the Gemini runtime.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiRuntime processes text with Google's Gemini models.
type GeminiRuntime struct {
	apiKey  string
	model   string
	baseURL string
}

func NewGeminiRuntime(apiKey, model, baseURL string) *GeminiRuntime {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiRuntime{apiKey: apiKey, model: model, baseURL: baseURL}
}

func (r *GeminiRuntime) Name() string { return "gemini" }

func (r *GeminiRuntime) Start(ctx context.Context) (Channel, error) {
	if r.apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  r.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if r.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: r.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiChannel{models: client.Models, model: r.model}, nil
}

type geminiChannel struct {
	models contentGenerator
	model  string
}

func (c *geminiChannel) Invoke(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.2),
	}
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(BuildPrompt(req.Operation, req.Text)), cfg)
	if err != nil {
		return "", mapGeminiError(err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// mapGeminiError turns API errors into *Error keyed by HTTP status. Model failures are
// never retried by the bridge.
func mapGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Code: strconv.Itoa(apiErr.Code), Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &Error{Code: strconv.Itoa(apiErrPtr.Code), Message: apiErrPtr.Message}
	}
	return &Error{Code: "gemini_error", Message: err.Error()}
}
