package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"strategiq-backend/internal/llm"
)

const (
	apiURL       = "https://openrouter.ai/api/v1/chat/completions"
	providerName = "openrouter"
)

// Client implements llm.Client against OpenRouter's OpenAI-compatible API.
// It serves as the fallback provider when the primary is unavailable.
type Client struct {
	apiKey     string
	model      string
	apiURL     string
	referer    string
	httpClient *http.Client
}

// NewClient constructs a new OpenRouter client.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenRouter")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required")
	}
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("OPENROUTER_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &Client{
		apiKey:  apiKey,
		model:   normalizeModel(model),
		apiURL:  apiURL,
		referer: strings.TrimSpace(os.Getenv("OPENROUTER_REFERER")),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Name identifies this provider.
func (c *Client) Name() string { return providerName }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// GenerateSWOT invokes the OpenRouter chat endpoint with the same contract
// as the primary provider.
func (c *Client) GenerateSWOT(ctx context.Context, input llm.GenerateInput) (json.RawMessage, error) {
	if rawFix, ok := llm.FixJSONFromContext(ctx); ok {
		return c.completeOnce(ctx, llm.BuildFixMessages(rawFix))
	}

	raw, err := c.completeOnce(ctx, llm.BuildMessages(input))
	if err != nil {
		return nil, err
	}
	if json.Valid(raw) {
		return raw, nil
	}

	raw, err = c.completeOnce(ctx, llm.BuildFixMessages(string(raw)))
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, &llm.ProviderError{Provider: providerName, Kind: llm.KindPermanent, Message: "invalid JSON output"}
	}
	return raw, nil
}

func (c *Client) completeOnce(ctx context.Context, messages []llm.Message) (json.RawMessage, error) {
	reqMessages := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		reqMessages = append(reqMessages, chatMessage{Role: m.Role, Content: m.Content})
	}
	payload, err := json.Marshal(chatRequest{Model: c.model, Messages: reqMessages})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, &llm.ProviderError{Provider: providerName, Kind: llm.KindTransient, Message: "request timeout", Err: err}
		}
		return nil, &llm.ProviderError{Provider: providerName, Kind: llm.KindTransient, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &llm.ProviderError{Provider: providerName, Kind: llm.KindTransient, Message: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		kind := llm.KindPermanent
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			kind = llm.KindTransient
		}
		return nil, &llm.ProviderError{Provider: providerName, Kind: kind, StatusCode: resp.StatusCode, Message: "api error"}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &llm.ProviderError{Provider: providerName, Kind: llm.KindPermanent, Message: "response parse failed", Err: err}
	}
	if parsed.Error != nil {
		return nil, &llm.ProviderError{Provider: providerName, Kind: llm.KindPermanent, Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return nil, &llm.ProviderError{Provider: providerName, Kind: llm.KindPermanent, Message: "response missing choices"}
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return nil, &llm.ProviderError{Provider: providerName, Kind: llm.KindPermanent, Message: "response empty content"}
	}
	return json.RawMessage(stripMarkdownFence(content)), nil
}

// normalizeModel maps bare model names onto OpenRouter's vendor/model form.
func normalizeModel(model string) string {
	if strings.Contains(model, "/") {
		return model
	}
	if strings.HasPrefix(strings.ToLower(model), "gpt-") {
		return "openai/" + model
	}
	return model
}

// stripMarkdownFence unwraps ```json fences some models emit despite
// instructions.
func stripMarkdownFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return content
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

var _ llm.Client = (*Client)(nil)
