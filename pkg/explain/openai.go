package explain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// DefaultModel is used when OpenAIConfig.Model is empty.
const DefaultModel = "gpt-4o-mini"

const defaultSystemPrompt = "You are a helpful assistant that diagnoses application state errors."

// OpenAIConfig configures the OpenAI backend.
type OpenAIConfig struct {
	APIKey string

	// BaseURL overrides the API endpoint, for OpenAI-compatible servers.
	BaseURL string

	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
}

// OpenAI explains errors with a chat completion model. It implements
// Explainer, Completer and Streamer.
type OpenAI struct {
	client *openai.Client
	config OpenAIConfig
	logger *slog.Logger
}

// NewOpenAI builds the backend. An empty API key is an error.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("explain: OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	logger = logger.With("component", "explain", "model", cfg.Model)
	logger.Info("initializing OpenAI client")
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		logger: logger,
	}, nil
}

func (o *OpenAI) request(prompt string, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: o.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.config.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: stream,
	}
	if o.config.Temperature > 0 {
		req.Temperature = o.config.Temperature
	}
	if o.config.MaxTokens > 0 {
		req.MaxCompletionTokens = o.config.MaxTokens
	}
	return req
}

// Complete implements Completer.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	o.logger.Debug("requesting completion")

	resp, err := o.client.CreateChatCompletion(ctx, o.request(prompt, false))
	if err != nil {
		o.logger.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("explain: OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		o.logger.Warn("OpenAI returned no choices")
		return "", ErrEmpty
	}

	o.logger.Debug("received completion", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// Explain implements Explainer.
func (o *OpenAI) Explain(ctx context.Context, req Request) (string, error) {
	return o.Complete(ctx, Prompt(req))
}

// Stream implements Streamer. Chunks are delivered in order; a failure is
// sent as the final chunk.
func (o *OpenAI) Stream(ctx context.Context, prompt string) (<-chan Chunk, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, o.request(prompt, true))
	if err != nil {
		o.logger.Error("OpenAI stream failed to start", "error", err)
		return nil, fmt.Errorf("explain: OpenAI stream failed: %w", err)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				o.logger.Warn("OpenAI stream interrupted", "error", err)
				select {
				case out <- Chunk{Err: fmt.Errorf("explain: stream: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case out <- Chunk{Text: resp.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
