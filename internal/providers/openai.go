package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// OpenAIModel implements Model for OpenAI-compatible chat completion APIs
// (OpenAI, OpenRouter, Groq, DeepSeek, local inference servers).
type OpenAIModel struct {
	name        string
	apiKey      string
	apiBase     string
	model       string
	client      *http.Client
	retryConfig RetryConfig
	limiter     *rate.Limiter // nil = unlimited
}

// OpenAIConfig configures an OpenAIModel.
type OpenAIConfig struct {
	Name    string  // provider identifier, defaults to "openai"
	APIKey  string
	APIBase string  // defaults to https://api.openai.com/v1
	Model   string  // model id sent on every request
	RPS     float64 // requests per second throttle, 0 = unlimited
}

func NewOpenAIModel(cfg OpenAIConfig) *OpenAIModel {
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	apiBase = strings.TrimRight(apiBase, "/")

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	return &OpenAIModel{
		name:        name,
		apiKey:      cfg.APIKey,
		apiBase:     apiBase,
		model:       cfg.Model,
		client:      &http.Client{Timeout: 120 * time.Second},
		retryConfig: DefaultRetryConfig(),
		limiter:     limiter,
	}
}

func (m *OpenAIModel) Name() string { return m.name }

func (m *OpenAIModel) Generate(ctx context.Context, req GenerateRequest) (*Response, error) {
	body := m.buildRequestBody(req.System, req.Prompt, req.Tools, false)

	resp, err := retryDo(ctx, m.retryConfig, func() (*Response, error) {
		respBody, err := m.doRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()

		var oaiResp openAIResponse
		if err := json.NewDecoder(respBody).Decode(&oaiResp); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", m.name, err)
		}
		return m.parseResponse(&oaiResp, req.Tools != nil)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (m *OpenAIModel) GenerateStructured(ctx context.Context, system, prompt string, out any) error {
	body := m.buildRequestBody(system, prompt, nil, true)

	text, err := retryDo(ctx, m.retryConfig, func() (string, error) {
		respBody, err := m.doRequest(ctx, body)
		if err != nil {
			return "", err
		}
		defer respBody.Close()

		var oaiResp openAIResponse
		if err := json.NewDecoder(respBody).Decode(&oaiResp); err != nil {
			return "", fmt.Errorf("%s: decode response: %w", m.name, err)
		}
		if len(oaiResp.Choices) == 0 {
			return "", fmt.Errorf("%s: empty choices", m.name)
		}
		return oaiResp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(stripCodeFence(text)), out); err != nil {
		return fmt.Errorf("%s: structured output is not valid JSON: %w", m.name, err)
	}
	return nil
}

func (m *OpenAIModel) buildRequestBody(system, prompt string, tools []ToolDefinition, jsonMode bool) map[string]any {
	messages := []map[string]any{}
	if system != "" {
		messages = append(messages, map[string]any{"role": "system", "content": system})
	}
	messages = append(messages, map[string]any{"role": "user", "content": prompt})

	body := map[string]any{
		"model":    m.model,
		"messages": messages,
	}
	if len(tools) > 0 {
		body["tools"] = tools
	}
	if jsonMode {
		body["response_format"] = map[string]any{"type": "json_object"}
	}
	return body
}

func (m *OpenAIModel) doRequest(ctx context.Context, body map[string]any) (io.ReadCloser, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", m.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiBase+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, retryable(fmt.Errorf("%s: request: %w", m.name, err))
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("%s: HTTP %d: %s", m.name, resp.StatusCode, strings.TrimSpace(string(detail)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retryable(err)
		}
		return nil, err
	}
	return resp.Body, nil
}

func (m *OpenAIModel) parseResponse(oaiResp *openAIResponse, toolsEnabled bool) (*Response, error) {
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty choices", m.name)
	}
	choice := oaiResp.Choices[0]

	resp := &Response{Text: choice.Message.Content}
	if oaiResp.Usage != nil {
		resp.Usage = &Usage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		}
	}

	// Tool calls only surface when the caller supplied tools; a model that
	// hallucinates calls with tools disabled is treated as text-only.
	if !toolsEnabled {
		return resp, nil
	}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("%s: tool call %s has malformed arguments: %w", m.name, tc.Function.Name, err)
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return resp, nil
}

// stripCodeFence removes a surrounding markdown code fence, which some
// models wrap around JSON despite json_object mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Wire format structs for the /chat/completions response.

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIMessage struct {
	Content   string           `json:"content"`
	ToolCalls []openAIToolCall `json:"tool_calls"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
