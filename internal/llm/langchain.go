package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
)

// langchainStreamer drives any langchaingo chat model
type langchainStreamer struct {
	name        Provider
	model       llms.Model
	maxTokens   int
	temperature float64
}

func newAnthropic(s Settings) (*langchainStreamer, error) {
	opts := []anthropic.Option{anthropic.WithModel(s.Model)}
	if s.APIKey != "" {
		opts = append(opts, anthropic.WithToken(s.APIKey))
	}
	if s.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(s.BaseURL))
	}
	model, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create anthropic client: %w", err)
	}
	return &langchainStreamer{name: Anthropic, model: model, maxTokens: s.MaxTokens, temperature: s.Temperature}, nil
}

func newOllama(s Settings) (*langchainStreamer, error) {
	opts := []ollama.Option{ollama.WithModel(s.Model)}
	if s.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(s.BaseURL))
	}
	model, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return &langchainStreamer{name: Ollama, model: model, maxTokens: s.MaxTokens, temperature: s.Temperature}, nil
}

func (l *langchainStreamer) Name() string { return string(l.name) }

func (l *langchainStreamer) Stream(ctx context.Context, prompt, systemInstruction string) <-chan string {
	return stream(ctx, func(ctx context.Context, yield yieldFunc) error {
		messages := []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, systemInstruction),
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		}

		opts := []llms.CallOption{
			llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
				if !yield(string(chunk)) {
					return errStopped
				}
				return nil
			}),
		}
		if l.maxTokens > 0 {
			opts = append(opts, llms.WithMaxTokens(l.maxTokens))
		}
		if l.temperature > 0 {
			opts = append(opts, llms.WithTemperature(l.temperature))
		}

		_, err := l.model.GenerateContent(ctx, messages, opts...)
		return err
	})
}
