package model

import (
	"fmt"

	"github.com/hupe1980/genmesh/core"
)

// TextRequest is the payload of a core.KindText request.
type TextRequest struct {
	Model       string   `json:"model,omitempty"`       // Overrides the executor default model
	System      string   `json:"system,omitempty"`      // System instructions
	Prompt      string   `json:"prompt"`                // User prompt
	MaxTokens   int64    `json:"max_tokens,omitempty"`  // 0 keeps the executor default
	Temperature *float64 `json:"temperature,omitempty"` // Nil keeps the executor default
	JSON        bool     `json:"json,omitempty"`        // Ask the backend for a JSON object
}

// TextOutput is the output of a text generation.
type TextOutput struct {
	Text         string `json:"text"`
	Model        string `json:"model,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"` // "stop", "length", etc.
}

// SpeechRequest is the payload of a core.KindSpeech request.
type SpeechRequest struct {
	Model  string `json:"model,omitempty"`
	Voice  string `json:"voice,omitempty"`
	Input  string `json:"input"`
	Format string `json:"format,omitempty"` // mp3, wav, opus...
}

// SpeechOutput carries synthesized audio.
type SpeechOutput struct {
	Audio  []byte `json:"audio"`
	Format string `json:"format,omitempty"`
}

// ImageRequest is the payload of a core.KindImage request.
type ImageRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"` // e.g. 1024x1024
}

// ImageOutput carries a generated image, inline or by URL.
type ImageOutput struct {
	Data          []byte `json:"data,omitempty"`
	URL           string `json:"url,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// EmbeddingRequest is the payload of a core.KindEmbedding request.
type EmbeddingRequest struct {
	Model  string   `json:"model,omitempty"`
	Inputs []string `json:"inputs"`
}

// EmbeddingOutput holds one vector per input, in input order.
type EmbeddingOutput struct {
	Vectors [][]float64 `json:"vectors"`
	Model   string      `json:"model,omitempty"`
}

// Info contains metadata about an executor implementation.
type Info struct {
	Name     string                `json:"name"`
	Provider string                `json:"provider"` // "openai", "anthropic", "mock", etc.
	Kinds    []core.GenerationKind `json:"kinds"`
}

// Supports reports whether the executor handles kind.
func (i Info) Supports(kind core.GenerationKind) bool {
	for _, k := range i.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// PayloadAs extracts a typed payload from a request. Both values and
// pointers are accepted.
func PayloadAs[T any](req core.Request) (T, error) {
	switch p := req.Payload.(type) {
	case T:
		return p, nil
	case *T:
		if p != nil {
			return *p, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unexpected %s payload %T, want %T", req.Kind, req.Payload, zero)
}

// UnsupportedKind builds the error returned for kinds an executor does not serve.
func UnsupportedKind(provider string, kind core.GenerationKind) error {
	return fmt.Errorf("%s executor does not support %s generations", provider, kind)
}
