package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aruizmd/medassist/internal/reliability"
)

const (
	// DefaultModel is a small modern model; override via config.
	DefaultModel = "gpt-4o-mini"

	summaryMaxTokens = 500

	callTimeout = 60 * time.Second

	retryBase = 500 * time.Millisecond
	retryCap  = 4 * time.Second
)

// OpenAIClient calls the OpenAI chat completion API for both the dispatch
// loop (with tools) and summarization (tools disabled, capped length).
type OpenAIClient struct {
	client       *openai.Client
	chatModel    string
	summaryModel string
}

func NewOpenAIClient(apiKey, chatModel, summaryModel string) *OpenAIClient {
	if chatModel == "" {
		chatModel = DefaultModel
	}
	if summaryModel == "" {
		summaryModel = chatModel
	}
	return &OpenAIClient{
		client:       openai.NewClient(apiKey),
		chatModel:    chatModel,
		summaryModel: summaryModel,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.chatModel
	}

	oaReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: 0.2,
		MaxTokens:   req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		oaReq.Tools = toOpenAITools(req.Tools)
		oaReq.ToolChoice = "auto"
	}

	resp, err := c.createWithRetry(ctx, oaReq)
	if err != nil {
		return CompletionResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return CompletionResponse{}, nil
	}

	msg := resp.Choices[0].Message
	out := CompletionResponse{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:            tc.ID,
			Name:          tc.Function.Name,
			ArgumentsJSON: tc.Function.Arguments,
		})
	}
	return out, nil
}

func (c *OpenAIClient) Summarize(ctx context.Context, instruction, text string) (string, error) {
	resp, err := c.createWithRetry(ctx, openai.ChatCompletionRequest{
		Model: c.summaryModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.2,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// createWithRetry retries once on a retryable upstream status. Anything
// else surfaces immediately; callers own the user-visible fallback.
func (c *OpenAIClient) createWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	resp, err := c.create(ctx, req)
	if err == nil || !isRetryable(err) {
		return resp, err
	}

	select {
	case <-ctx.Done():
		return openai.ChatCompletionResponse{}, ctx.Err()
	case <-time.After(reliability.ExponentialBackoff(1, retryBase, retryCap)):
	}
	return c.create(ctx, req)
}

func (c *OpenAIClient) create(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return c.client.CreateChatCompletion(callCtx, req)
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return reliability.IsRetryableHTTPStatus(apiErr.HTTPStatusCode)
	}
	return false
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		oa := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			oa.ToolCalls = append(oa.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.ArgumentsJSON,
				},
			})
		}
		out = append(out, oa)
	}
	return out
}

func toOpenAITools(specs []ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}
