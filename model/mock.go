package model

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/hupe1980/genmesh/core"
)

// MockExecutor is a lightweight deterministic core.Executor useful for tests
// and examples. Units are counted in whitespace separated words.
type MockExecutor struct {
	info Info

	mu        sync.RWMutex
	responses map[string]string
}

// NewMockExecutor constructs a MockExecutor serving every generation kind.
func NewMockExecutor(name string) *MockExecutor {
	return &MockExecutor{
		info: Info{
			Name:     name,
			Provider: "mock",
			Kinds:    []core.GenerationKind{core.KindText, core.KindSpeech, core.KindImage, core.KindEmbedding},
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned text completion for a prompt.
func (m *MockExecutor) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Execute implements core.Executor.
func (m *MockExecutor) Execute(ctx context.Context, req core.Request) (core.Result, error) {
	if err := ctx.Err(); err != nil {
		return core.Result{}, err
	}

	switch req.Kind {
	case core.KindText:
		p, err := PayloadAs[TextRequest](req)
		if err != nil {
			return core.Result{}, err
		}
		m.mu.RLock()
		text, ok := m.responses[p.Prompt]
		m.mu.RUnlock()
		if !ok {
			text = fmt.Sprintf("Mock response to: %s", p.Prompt)
		}
		return core.Result{
			Output: TextOutput{Text: text, Model: m.info.Name, FinishReason: "stop"},
			Usage:  core.Units{Input: words(p.System) + words(p.Prompt), Output: words(text)},
		}, nil
	case core.KindSpeech:
		p, err := PayloadAs[SpeechRequest](req)
		if err != nil {
			return core.Result{}, err
		}
		return core.Result{
			Output: SpeechOutput{Audio: []byte(p.Input), Format: p.Format},
			Usage:  core.Units{Input: int64(len(p.Input))},
		}, nil
	case core.KindImage:
		p, err := PayloadAs[ImageRequest](req)
		if err != nil {
			return core.Result{}, err
		}
		return core.Result{
			Output: ImageOutput{Data: []byte(p.Prompt), RevisedPrompt: p.Prompt},
			Usage:  core.Units{Output: 1},
		}, nil
	case core.KindEmbedding:
		p, err := PayloadAs[EmbeddingRequest](req)
		if err != nil {
			return core.Result{}, err
		}
		out := EmbeddingOutput{Vectors: make([][]float64, len(p.Inputs)), Model: m.info.Name}
		var units int64
		for i, in := range p.Inputs {
			out.Vectors[i] = vector(in)
			units += words(in)
		}
		return core.Result{Output: out, Usage: core.Units{Input: units}}, nil
	default:
		return core.Result{}, UnsupportedKind("mock", req.Kind)
	}
}

// Info returns metadata describing the mock.
func (m *MockExecutor) Info() Info { return m.info }

func words(s string) int64 { return int64(len(strings.Fields(s))) }

// vector derives a stable 4-dimensional vector from s.
func vector(s string) []float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	sum := h.Sum64()
	v := make([]float64, 4)
	for i := range v {
		v[i] = float64((sum>>(16*i))&0xffff) / 0xffff
	}
	return v
}
