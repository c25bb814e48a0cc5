// Package openai provides a core.Executor backed by the OpenAI API. It serves
// text (Chat Completions), speech (Audio Speech), image (Images) and
// embedding generations, adapting the payloads of package model into SDK
// parameters and back.
//
// SDK retries are disabled on every call: the model queue owns the retry
// policy. HTTP 429 responses are classified as *core.ThrottleError.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/hupe1980/genmesh/core"
	"github.com/hupe1980/genmesh/internal/throttle"
	"github.com/hupe1980/genmesh/model"
)

// Options configure the OpenAI executor. Models are defaults that a payload
// may override per request.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	SpeechModel         string
	Voice               string
	SpeechFormat        string
	ImageModel          string
	ImageSize           string
	EmbeddingModel      string
	APIKey              string
	BaseURL             string
	Throttle            throttle.Options
}

// Executor wraps the OpenAI API behind core.Executor.
type Executor struct {
	client   *openai.Client
	opts     Options
	schedule *throttle.Schedule
}

func defaultOptions() Options {
	return Options{
		Model:               string(openai.ChatModelGPT4oMini),
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		SpeechModel:         string(openai.SpeechModelTTS1),
		Voice:               string(openai.AudioSpeechNewParamsVoiceAlloy),
		SpeechFormat:        string(openai.AudioSpeechNewParamsResponseFormatMP3),
		ImageModel:          string(openai.ImageModelDallE3),
		ImageSize:           string(openai.ImageGenerateParamsSize1024x1024),
		EmbeddingModel:      string(openai.EmbeddingModelTextEmbedding3Small),
		Throttle:            throttle.DefaultOptions(),
	}
}

// NewExecutor creates an executor with its own client.
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

	client := openai.NewClient(clientOpts...)
	return newExecutor(&client, opts)
}

// NewExecutorFromClient creates an executor from an existing client.
func NewExecutorFromClient(client *openai.Client, optFns ...func(o *Options)) *Executor {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return newExecutor(client, opts)
}

func newExecutor(client *openai.Client, opts Options) *Executor {
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
	var (
		res core.Result
		err error
	)

	switch req.Kind {
	case core.KindText:
		res, err = e.text(ctx, req)
	case core.KindSpeech:
		res, err = e.speech(ctx, req)
	case core.KindImage:
		res, err = e.image(ctx, req)
	case core.KindEmbedding:
		res, err = e.embedding(ctx, req)
	default:
		return core.Result{}, model.UnsupportedKind("openai", req.Kind)
	}

	if err != nil {
		return core.Result{}, e.classify(err)
	}
	e.schedule.Reset()
	return res, nil
}

func (e *Executor) text(ctx context.Context, req core.Request) (core.Result, error) {
	p, err := model.PayloadAs[model.TextRequest](req)
	if err != nil {
		return core.Result{}, err
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if p.System != "" {
		messages = append(messages, openai.SystemMessage(p.System))
	}
	messages = append(messages, openai.UserMessage(p.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               pick(p.Model, e.opts.Model),
		Temperature:         openai.Float(e.opts.Temperature),
		MaxCompletionTokens: openai.Int(e.opts.MaxCompletionTokens),
	}
	if p.Temperature != nil {
		params.Temperature = openai.Float(*p.Temperature)
	}
	if p.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(p.MaxTokens)
	}
	if p.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := e.client.Chat.Completions.New(ctx, params, option.WithMaxRetries(0))
	if err != nil {
		return core.Result{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return core.Result{}, fmt.Errorf("no choices returned")
	}

	cached := resp.Usage.PromptTokensDetails.CachedTokens
	return core.Result{
		Output: model.TextOutput{
			Text:         resp.Choices[0].Message.Content,
			Model:        resp.Model,
			FinishReason: resp.Choices[0].FinishReason,
		},
		Usage: core.Units{
			Input:       resp.Usage.PromptTokens - cached,
			Output:      resp.Usage.CompletionTokens,
			CachedInput: cached,
		},
	}, nil
}

func (e *Executor) speech(ctx context.Context, req core.Request) (core.Result, error) {
	p, err := model.PayloadAs[model.SpeechRequest](req)
	if err != nil {
		return core.Result{}, err
	}

	format := pick(p.Format, e.opts.SpeechFormat)
	resp, err := e.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          p.Input,
		Model:          openai.SpeechModel(pick(p.Model, e.opts.SpeechModel)),
		Voice:          openai.AudioSpeechNewParamsVoice(pick(p.Voice, e.opts.Voice)),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(format),
	}, option.WithMaxRetries(0))
	if err != nil {
		return core.Result{}, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Result{}, fmt.Errorf("read speech body: %w", err)
	}

	// Speech is billed per input character.
	return core.Result{
		Output: model.SpeechOutput{Audio: audio, Format: format},
		Usage:  core.Units{Input: int64(len([]rune(p.Input)))},
	}, nil
}

func (e *Executor) image(ctx context.Context, req core.Request) (core.Result, error) {
	p, err := model.PayloadAs[model.ImageRequest](req)
	if err != nil {
		return core.Result{}, err
	}

	resp, err := e.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         p.Prompt,
		Model:          openai.ImageModel(pick(p.Model, e.opts.ImageModel)),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(pick(p.Size, e.opts.ImageSize)),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	}, option.WithMaxRetries(0))
	if err != nil {
		return core.Result{}, fmt.Errorf("openai image: %w", err)
	}
	if len(resp.Data) == 0 {
		return core.Result{}, fmt.Errorf("no image returned")
	}

	img := resp.Data[0]
	out := model.ImageOutput{URL: img.URL, RevisedPrompt: img.RevisedPrompt}
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return core.Result{}, fmt.Errorf("decode image: %w", err)
		}
		out.Data = data
	}

	// Images are billed per generated image.
	return core.Result{Output: out, Usage: core.Units{Output: 1}}, nil
}

func (e *Executor) embedding(ctx context.Context, req core.Request) (core.Result, error) {
	p, err := model.PayloadAs[model.EmbeddingRequest](req)
	if err != nil {
		return core.Result{}, err
	}
	if len(p.Inputs) == 0 {
		return core.Result{}, fmt.Errorf("embedding request has no inputs")
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: p.Inputs},
		Model: openai.EmbeddingModel(pick(p.Model, e.opts.EmbeddingModel)),
	}, option.WithMaxRetries(0))
	if err != nil {
		return core.Result{}, fmt.Errorf("openai embedding: %w", err)
	}

	vectors := make([][]float64, len(p.Inputs))
	for _, d := range resp.Data {
		if d.Index >= 0 && int(d.Index) < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}

	return core.Result{
		Output: model.EmbeddingOutput{Vectors: vectors, Model: resp.Model},
		Usage:  core.Units{Input: resp.Usage.PromptTokens},
	}, nil
}

// classify maps rate-limit responses onto *core.ThrottleError.
func (e *Executor) classify(err error) error {
	var apiErr *openai.Error
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
		Name:     e.opts.Model,
		Provider: "openai",
		Kinds:    []core.GenerationKind{core.KindText, core.KindSpeech, core.KindImage, core.KindEmbedding},
	}
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
