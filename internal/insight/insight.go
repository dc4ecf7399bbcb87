// Package insight picks an LLM provider for short generated text and falls
// back to a fixed message when none of them answers.
package insight

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
)

// Fallback is returned when every provider fails or none is configured.
const Fallback = "Insights are unavailable right now. Your data is safe; try again later."

// ErrEmptyResponse is returned by a provider that answered without any text.
var ErrEmptyResponse = errors.New("provider returned no text")

// Provider completes a single prompt.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Keys holds the optional credentials for each provider. An empty model
// keeps that provider's default.
type Keys struct {
	Anthropic  string
	OpenAI     string
	OpenRouter string

	AnthropicModel  string
	OpenAIModel     string
	OpenRouterModel string
}

// Providers returns one Provider per configured key, Anthropic first.
func Providers(k Keys) []Provider {
	var out []Provider
	if k.Anthropic != "" {
		out = append(out, NewAnthropic(k.Anthropic, k.AnthropicModel))
	}
	if k.OpenAI != "" {
		out = append(out, NewOpenAI(k.OpenAI, k.OpenAIModel))
	}
	if k.OpenRouter != "" {
		out = append(out, NewOpenRouter(k.OpenRouter, k.OpenRouterModel))
	}
	return out
}

// Result reports which provider produced Text; Provider is empty for the fallback.
type Result struct {
	Text     string `json:"text"`
	Provider string `json:"provider,omitempty"`
}

type Selector struct {
	providers []Provider
	logger    *log.Logger
}

func NewSelector(logger *log.Logger, providers ...Provider) *Selector {
	if logger == nil {
		logger = log.New(os.Stderr, "[insight] ", log.LstdFlags)
	}
	return &Selector{providers: providers, logger: logger}
}

// Generate asks each provider in order and returns the first non-empty
// answer. It never fails: when all providers do, it returns Fallback.
func (s *Selector) Generate(ctx context.Context, prompt string) Result {
	for _, p := range s.providers {
		if ctx.Err() != nil {
			break
		}
		text, err := p.Complete(ctx, prompt)
		if err == nil {
			text = strings.TrimSpace(text)
			if text != "" {
				return Result{Text: text, Provider: p.Name()}
			}
			err = ErrEmptyResponse
		}
		s.logger.Printf("provider %s failed: %v", p.Name(), err)
	}
	return Result{Text: Fallback}
}
