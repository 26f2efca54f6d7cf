// Package llm streams completions from the configured language model
// backend.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider names a supported LLM backend
type Provider string

// Supported providers
const (
	Anthropic Provider = "anthropic"
	Ollama    Provider = "ollama"
	OpenAI    Provider = "openai"
	Gemini    Provider = "gemini"
)

// Providers lists every supported backend
var Providers = []Provider{Anthropic, Ollama, OpenAI, Gemini}

// ErrUnknownProvider is returned for provider names outside Providers
var ErrUnknownProvider = errors.New("unknown llm provider")

// ErrorPrefix starts the in-band fragment reporting a backend failure
const ErrorPrefix = "Error contacting provider: "

// ParseProvider maps a configuration value onto a Provider
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

// Streamer produces a completion as a sequence of text fragments. The
// channel is closed when the completion ends or ctx is cancelled. Backend
// failures arrive as a final fragment starting with ErrorPrefix.
type Streamer interface {
	Stream(ctx context.Context, prompt, systemInstruction string) <-chan string
	Name() string
}

// Settings configures one provider
type Settings struct {
	Provider    Provider
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// New builds the streamer for s.Provider
func New(ctx context.Context, s Settings) (Streamer, error) {
	switch s.Provider {
	case Anthropic:
		return newAnthropic(s)
	case Ollama:
		return newOllama(s)
	case OpenAI:
		return newOpenAI(s), nil
	case Gemini:
		return newGemini(ctx, s)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, s.Provider)
	}
}

// ErrorFragment renders err as the in-band failure fragment
func ErrorFragment(err error) string {
	return ErrorPrefix + err.Error()
}

// yieldFunc hands one fragment to the consumer; false means stop
type yieldFunc func(fragment string) bool

var errStopped = errors.New("consumer stopped reading")

// stream runs produce on its own goroutine and forwards what it yields.
// A produce error is sent as an error fragment unless ctx was cancelled.
func stream(ctx context.Context, produce func(ctx context.Context, yield yieldFunc) error) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		yield := func(fragment string) bool {
			if fragment == "" {
				return ctx.Err() == nil
			}
			select {
			case out <- fragment:
				return true
			case <-ctx.Done():
				return false
			}
		}

		err := produce(ctx, yield)
		if err == nil || ctx.Err() != nil || errors.Is(err, errStopped) {
			return
		}
		select {
		case out <- ErrorFragment(err):
		case <-ctx.Done():
		}
	}()

	return out
}
