// Package anthropic provides a text core.Executor for the Anthropic Messages
// API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/genmesh/core"
	"github.com/hupe1980/genmesh/internal/throttle"
	"github.com/hupe1980/genmesh/model"
)

// Options configures the Anthropic executor (temperature, model id, max
// tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
	Throttle    throttle.Options
}

// Executor wraps the Anthropic Messages API behind core.Executor. Only text
// generations are supported. Both 429 and 529 (overloaded) responses are
// reported as *core.ThrottleError.
type Executor struct {
	client   *anthropic.Client
	opts     Options
	schedule *throttle.Schedule
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
		Throttle:    throttle.DefaultOptions(),
	}
}

// NewExecutor creates a new Anthropic executor using the official client.
func NewExecutor(optFns ...func(o *Options)) *Executor {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return newExecutor(&client, opts)
}

// NewExecutorFromClient creates a new Anthropic executor from an existing client.
func NewExecutorFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Executor {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	return newExecutor(client, opts)
}

func newExecutor(client *anthropic.Client, opts Options) *Executor {
	return &Executor{
		client: client,
		opts:   opts,
		schedule: throttle.NewSchedule(func(o *throttle.Options) {
			*o = opts.Throttle
		}),
	}
}

// Execute implements core.Executor.
func (e *Executor) Execute(ctx context.Context, req core.Request) (core.Result, error) {
	if req.Kind != core.KindText {
		return core.Result{}, model.UnsupportedKind("anthropic", req.Kind)
	}

	p, err := model.PayloadAs[model.TextRequest](req)
	if err != nil {
		return core.Result{}, err
	}

	params := anthropic.MessageNewParams{
		Model:       e.opts.Model,
		MaxTokens:   e.opts.MaxTokens,
		Temperature: anthropic.Float(e.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.Prompt)),
		},
	}
	if p.Model != "" {
		params.Model = anthropic.Model(p.Model)
	}
	if p.MaxTokens > 0 {
		params.MaxTokens = p.MaxTokens
	}
	if p.Temperature != nil {
		params.Temperature = anthropic.Float(*p.Temperature)
	}

	system := p.System
	if p.JSON {
		// The Messages API has no JSON mode; ask for it in the system prompt.
		system = strings.TrimSpace(system + "\nRespond with a single JSON object and nothing else.")
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := e.client.Messages.New(ctx, params, option.WithMaxRetries(0))
	if err != nil {
		return core.Result{}, e.classify(fmt.Errorf("anthropic api error: %w", err))
	}
	e.schedule.Reset()

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return core.Result{
		Output: model.TextOutput{
			Text:         text.String(),
			Model:        string(resp.Model),
			FinishReason: finishReason,
		},
		Usage: core.Units{
			Input:       resp.Usage.InputTokens,
			Output:      resp.Usage.OutputTokens,
			CachedInput: resp.Usage.CacheReadInputTokens,
			CacheWrite:  resp.Usage.CacheCreationInputTokens,
		},
	}, nil
}

func (e *Executor) classify(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	var header http.Header
	if apiErr.Response != nil {
		header = apiErr.Response.Header
	}
	return e.schedule.Classify(apiErr.StatusCode, header, err)
}

// Info returns metadata describing this executor.
func (e *Executor) Info() model.Info {
	return model.Info{
		Name:     string(e.opts.Model),
		Provider: "anthropic",
		Kinds:    []core.GenerationKind{core.KindText},
	}
}
