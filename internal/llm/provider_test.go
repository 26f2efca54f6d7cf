package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel streams a fixed list of chunks, then returns err
type scriptedModel struct {
	chunks   []string
	err      error
	messages []llms.MessageContent
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	var full strings.Builder
	for _, c := range m.chunks {
		if opts.StreamingFunc != nil {
			if err := opts.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
		full.WriteString(c)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: full.String()}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func collect(ch <-chan string) []string {
	var out []string
	for f := range ch {
		out = append(out, f)
	}
	return out
}

func TestParseProvider(t *testing.T) {
	for _, name := range []string{"anthropic", "Ollama", " openai ", "GEMINI"} {
		p, err := ParseProvider(name)
		require.NoError(t, err, name)
		assert.Contains(t, Providers, p)
	}

	_, err := ParseProvider("cohere")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Settings{Provider: "cohere"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestLangchainStreamerForwardsFragmentsInOrder(t *testing.T) {
	model := &scriptedModel{chunks: []string{"Hel", "", "lo", " world"}}
	s := &langchainStreamer{name: Ollama, model: model}

	got := collect(s.Stream(context.Background(), "user: hi", "be nice"))
	assert.Equal(t, []string{"Hel", "lo", " world"}, got)
	assert.Equal(t, "ollama", s.Name())

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.TextContent{Text: "be nice"}, model.messages[0].Parts[0])
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.TextContent{Text: "user: hi"}, model.messages[1].Parts[0])
}

func TestLangchainStreamerReportsBackendFailureInBand(t *testing.T) {
	model := &scriptedModel{chunks: []string{"partial"}, err: errors.New("quota exceeded")}
	s := &langchainStreamer{name: Anthropic, model: model}

	got := collect(s.Stream(context.Background(), "p", "s"))
	require.Len(t, got, 2)
	assert.Equal(t, "partial", got[0])
	assert.Equal(t, "Error contacting provider: quota exceeded", got[1])
}

func TestStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	produced := make(chan error, 1)

	ch := stream(ctx, func(ctx context.Context, yield yieldFunc) error {
		for {
			if !yield("tick") {
				produced <- errStopped
				return errStopped
			}
		}
	})

	assert.Equal(t, "tick", <-ch)
	cancel()

	select {
	case err := <-produced:
		assert.ErrorIs(t, err, errStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not observe cancellation")
	}

	for range ch {
	}
}

func TestStreamSuppressesErrorAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := stream(ctx, func(ctx context.Context, yield yieldFunc) error {
		return ctx.Err()
	})
	assert.Empty(t, collect(ch))
}
