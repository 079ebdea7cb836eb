package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/positive-doo/multitool/pkg/config"
	"github.com/positive-doo/multitool/pkg/httpclient"
	"github.com/positive-doo/multitool/pkg/observability"
	"github.com/positive-doo/multitool/pkg/oracle"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const oracleName = "openai"

func (p *OpenAIProvider) startSpan(ctx context.Context, streaming bool) (context.Context, trace.Span) {
	return observability.GetTracer("multitool.llm").Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, p.config.Model),
			attribute.String("provider", oracleName),
			attribute.Bool(observability.AttrLLMStreaming, streaming),
		),
	)
}

type OpenAIProvider struct {
	config     *config.LLMConfig
	httpClient *httpclient.Client
}

type OpenAIRequest struct {
	Model          string                `json:"model"`
	Messages       []Message             `json:"messages"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	Temperature    *float64              `json:"temperature,omitempty"`
	Stop           []string              `json:"stop,omitempty"`
	Stream         bool                  `json:"stream"`
	StreamOptions  *OpenAIStreamOptions  `json:"stream_options,omitempty"`
	ResponseFormat *OpenAIResponseFormat `json:"response_format,omitempty"`
}

type OpenAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type OpenAIResponse struct {
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
	Error   *Error   `json:"error,omitempty"`
}

type OpenAIStreamResponse struct {
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
	Error   *Error         `json:"error,omitempty"`
}

type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type StreamChoice struct {
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type Delta struct {
	Content string `json:"content,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type OpenAIResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *OpenAIJSONSchema `json:"json_schema,omitempty"`
}

type OpenAIJSONSchema struct {
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
	Strict bool                   `json:"strict,omitempty"`
}

func NewOpenAIProviderFromConfig(cfg *config.LLMConfig) (*OpenAIProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required (set OPENAI_API_KEY)")
	}

	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
	)

	return &OpenAIProvider{
		config:     cfg,
		httpClient: httpClient,
	}, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, opts ...CallOption) (string, int, error) {
	return p.complete(ctx, p.buildRequest(messages, false, applyOptions(opts)))
}

func (p *OpenAIProvider) GenerateStructured(ctx context.Context, messages []Message, structConfig *StructuredOutputConfig, opts ...CallOption) (string, int, error) {
	req := p.buildRequest(messages, false, applyOptions(opts))

	if structConfig != nil && structConfig.Format == "json" {
		if structConfig.Schema != nil {
			name := structConfig.Name
			if name == "" {
				name = "response"
			}
			req.ResponseFormat = &OpenAIResponseFormat{
				Type: "json_schema",
				JSONSchema: &OpenAIJSONSchema{
					Name:   name,
					Schema: structConfig.Schema,
					Strict: true,
				},
			}
		} else {
			req.ResponseFormat = &OpenAIResponseFormat{Type: "json_object"}
		}
	}

	return p.complete(ctx, req)
}

func (p *OpenAIProvider) complete(ctx context.Context, req OpenAIRequest) (string, int, error) {
	ctx, span := p.startSpan(ctx, false)
	start := time.Now()
	response, err := p.makeRequest(ctx, req)
	if err == nil && response.Error != nil {
		err = fmt.Errorf("OpenAI API error: %s", response.Error.Message)
	}
	if err == nil && len(response.Choices) == 0 {
		err = fmt.Errorf("no response choices returned")
	}

	if err != nil {
		observability.GetGlobalMetrics().RecordLLMCall(p.config.Model, time.Since(start), 0, err)
		observability.EndSpan(span, err)
		return "", 0, oracle.Wrap(oracleName, "chat completion", err)
	}

	tokens := response.Usage.TotalTokens
	observability.GetGlobalMetrics().RecordLLMCall(p.config.Model, time.Since(start), tokens, nil)
	observability.EndSpan(span, nil, attribute.Int(observability.AttrLLMTokens, tokens))
	slog.Debug("LLM completion",
		"model", p.config.Model,
		"prompt_tokens", response.Usage.PromptTokens,
		"completion_tokens", response.Usage.CompletionTokens)

	return response.Choices[0].Message.Content, tokens, nil
}

func (p *OpenAIProvider) GenerateStreaming(ctx context.Context, messages []Message, opts ...CallOption) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, true, applyOptions(opts))

	outputCh := make(chan StreamChunk, 100)

	go func() {
		defer close(outputCh)

		ctx, span := p.startSpan(ctx, true)
		start := time.Now()
		tokens, err := p.makeStreamingRequest(ctx, request, outputCh)
		observability.GetGlobalMetrics().RecordLLMCall(p.config.Model, time.Since(start), tokens, err)
		observability.EndSpan(span, err, attribute.Int(observability.AttrLLMTokens, tokens))
		if err != nil {
			outputCh <- StreamChunk{
				Type:  "error",
				Error: oracle.Wrap(oracleName, "chat completion stream", err),
			}
			return
		}
		outputCh <- StreamChunk{Type: "done", Tokens: tokens}
	}()

	return outputCh, nil
}

func (p *OpenAIProvider) GetModelName() string {
	return p.config.Model
}

func (p *OpenAIProvider) Close() error {
	return nil
}

func (p *OpenAIProvider) buildRequest(messages []Message, stream bool, opts CallOptions) OpenAIRequest {
	req := OpenAIRequest{
		Model:       p.config.Model,
		Messages:    messages,
		Temperature: p.config.Temperature,
		Stop:        opts.Stop,
		Stream:      stream,
	}
	if opts.Temperature != nil {
		req.Temperature = opts.Temperature
	}

	maxTokens := p.config.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}

	if stream {
		req.StreamOptions = &OpenAIStreamOptions{IncludeUsage: true}
	}
	return req
}

func parseErrorResponse(body []byte) *Error {
	if len(body) == 0 {
		return nil
	}
	var errorResp struct {
		Error Error `json:"error"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		return &errorResp.Error
	}
	return nil
}

func (p *OpenAIProvider) send(ctx context.Context, request OpenAIRequest) (*http.Response, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.httpClient.Do(req)
	// the retrying client returns the response alongside the error for non-2xx
	if resp != nil && resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("API request failed with status %d: (failed to read error body: %v)", resp.StatusCode, readErr)
		}
		if apiErr := parseErrorResponse(body); apiErr != nil {
			return nil, fmt.Errorf("API request failed with status %d: %s (type: %s, code: %s)",
				resp.StatusCode, apiErr.Message, apiErr.Type, apiErr.Code)
		}
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	return resp, nil
}

func (p *OpenAIProvider) makeRequest(ctx context.Context, request OpenAIRequest) (*OpenAIResponse, error) {
	resp, err := p.send(ctx, request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response OpenAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &response, nil
}

func (p *OpenAIProvider) makeStreamingRequest(ctx context.Context, request OpenAIRequest, outputCh chan<- StreamChunk) (int, error) {
	resp, err := p.send(ctx, request)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	totalTokens := 0

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return totalTokens, fmt.Errorf("failed to read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		line = line[6:]

		if bytes.Equal(line, []byte("[DONE]")) {
			break
		}

		var streamResp OpenAIStreamResponse
		if err := json.Unmarshal(line, &streamResp); err != nil {
			continue
		}
		if streamResp.Error != nil {
			return totalTokens, fmt.Errorf("API error: %s", streamResp.Error.Message)
		}
		if streamResp.Usage != nil {
			totalTokens = streamResp.Usage.TotalTokens
		}
		if len(streamResp.Choices) == 0 || streamResp.Choices[0].Delta.Content == "" {
			continue
		}

		select {
		case outputCh <- StreamChunk{Type: "text", Text: streamResp.Choices[0].Delta.Content}:
		case <-ctx.Done():
			return totalTokens, ctx.Err()
		}
	}

	return totalTokens, nil
}
