// Package llm generates structured notification copy through an
// OpenAI-compatible chat completions endpoint.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDisabled is returned by a nil or unconfigured generator.
var ErrDisabled = errors.New("llm: generator disabled")

// Generator produces a JSON object for prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (json.RawMessage, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (json.RawMessage, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (json.RawMessage, error) {
	return f(ctx, prompt)
}

// Decode runs g and unmarshals the result into out.
func Decode(ctx context.Context, g Generator, prompt string, out any) error {
	if g == nil {
		return ErrDisabled
	}
	raw, err := g.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("llm: decode generated JSON: %w", err)
	}
	return nil
}
