package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type geminiStreamer struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

func newGemini(ctx context.Context, s Settings) (*geminiStreamer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(s.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiStreamer{
		client:      client,
		model:       s.Model,
		maxTokens:   int32(s.MaxTokens),
		temperature: float32(s.Temperature),
	}, nil
}

func (g *geminiStreamer) Name() string { return string(Gemini) }

// Close releases the underlying client
func (g *geminiStreamer) Close() error { return g.client.Close() }

func (g *geminiStreamer) Stream(ctx context.Context, prompt, systemInstruction string) <-chan string {
	return stream(ctx, func(ctx context.Context, yield yieldFunc) error {
		// models are cheap handles; one per call keeps SystemInstruction unshared
		model := g.client.GenerativeModel(g.model)
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemInstruction))
		if g.maxTokens > 0 {
			model.SetMaxOutputTokens(g.maxTokens)
		}
		if g.temperature > 0 {
			model.SetTemperature(g.temperature)
		}

		iter := model.GenerateContentStream(ctx, genai.Text(prompt))
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				return err
			}
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if text, ok := part.(genai.Text); ok && !yield(string(text)) {
						return errStopped
					}
				}
			}
		}
	})
}
