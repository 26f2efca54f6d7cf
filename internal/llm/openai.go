package llm

import (
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"
)

type openAIStreamer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func newOpenAI(s Settings) *openAIStreamer {
	cfg := openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}
	return &openAIStreamer{
		client:      openai.NewClientWithConfig(cfg),
		model:       s.Model,
		maxTokens:   s.MaxTokens,
		temperature: float32(s.Temperature),
	}
}

func (o *openAIStreamer) Name() string { return string(OpenAI) }

func (o *openAIStreamer) Stream(ctx context.Context, prompt, systemInstruction string) <-chan string {
	return stream(ctx, func(ctx context.Context, yield yieldFunc) error {
		req := openai.ChatCompletionRequest{
			Model:       o.model,
			MaxTokens:   o.maxTokens,
			Temperature: o.temperature,
			Stream:      true,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		}

		resp, err := o.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return err
		}
		defer resp.Close()

		for {
			chunk, err := resp.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			for _, choice := range chunk.Choices {
				if !yield(choice.Delta.Content) {
					return errStopped
				}
			}
		}
	})
}
