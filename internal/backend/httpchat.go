package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultChatEndpoint = "http://127.0.0.1:11434/v1/chat/completions"
	defaultChatModel    = "llama3.2"
	maxChatErrorBody    = 4 * 1024
)

// HTTPChatRuntime talks to an OpenAI-compatible chat completions endpoint (OpenAI, Ollama,
// llama.cpp server).
type HTTPChatRuntime struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPChatRuntime(endpoint, model, apiKey string, timeout time.Duration) *HTTPChatRuntime {
	if endpoint == "" {
		endpoint = DefaultChatEndpoint
	}
	if model == "" {
		model = defaultChatModel
	}
	if timeout <= 0 {
		timeout = defaultPluginTimeout
	}
	return &HTTPChatRuntime{
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (r *HTTPChatRuntime) Name() string { return "http" }

func (r *HTTPChatRuntime) Start(context.Context) (Channel, error) {
	if !strings.HasPrefix(r.endpoint, "http://") && !strings.HasPrefix(r.endpoint, "https://") {
		return nil, fmt.Errorf("chat endpoint %q must be an http(s) URL", r.endpoint)
	}
	return &httpChatChannel{runtime: r}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (r chatCompletionResponse) firstMessage() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Choices[0].Message.Content)
}

type httpChatChannel struct {
	runtime *HTTPChatRuntime
}

func (c *httpChatChannel) Invoke(ctx context.Context, req Request) (string, error) {
	r := c.runtime
	payload := chatCompletionRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: BuildPrompt(req.Operation, req.Text)},
		},
		Temperature: 0.2,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("content-type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxChatErrorBody))
		return "", &Error{Code: "http_" + strconv.Itoa(resp.StatusCode), Message: strings.TrimSpace(string(msg))}
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return decoded.firstMessage(), nil
}
