package genmesh

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/genmesh/audit"
	"github.com/hupe1980/genmesh/config"
	"github.com/hupe1980/genmesh/core"
	"github.com/hupe1980/genmesh/logging"
	"github.com/hupe1980/genmesh/model"
	anthropicmodel "github.com/hupe1980/genmesh/model/anthropic"
	openaimodel "github.com/hupe1980/genmesh/model/openai"
	"github.com/hupe1980/genmesh/registry"
	"github.com/hupe1980/genmesh/store"
	"github.com/hupe1980/genmesh/store/sqlite"
)

// ExecutorFactory builds the executor of one configured backend.
type ExecutorFactory func(b config.BackendConfig) (core.Executor, error)

// Factories maps a provider name onto its ExecutorFactory.
type Factories map[string]ExecutorFactory

// DefaultFactories returns the factories of the shipped providers.
func DefaultFactories() Factories {
	return Factories{
		"openai":    newOpenAIExecutor,
		"anthropic": newAnthropicExecutor,
		"mock": func(b config.BackendConfig) (core.Executor, error) {
			return model.NewMockExecutor(b.Name), nil
		},
	}
}

// FromConfig builds a GenMesh from a configuration. factories override
// DefaultFactories per provider (nil keeps the defaults). The returned GenMesh owns the
// configured store; release it with Close.
func FromConfig(cfg *config.Config, factories Factories) (*GenMesh, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	all := DefaultFactories()
	for name, f := range factories {
		all[name] = f
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(cfg.Logging.Level),
		Format:    cfg.Logging.Format,
		Output:    os.Stderr,
		AddSource: cfg.Logging.AddSource,
		Component: "genmesh",
	})

	backends := make([]registry.Backend, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		factory, ok := all[b.Provider]
		if !ok {
			return nil, fmt.Errorf("backend %q: no executor factory for provider %q", b.Name, b.Provider)
		}
		exec, err := factory(b)
		if err != nil {
			return nil, fmt.Errorf("backend %q: %w", b.Name, err)
		}
		backends = append(backends, backendFromConfig(cfg.Defaults, b, exec))
	}

	var (
		rs      core.ResultStore
		sink    core.AuditSink = audit.NewLogSink(logger)
		closers []io.Closer
	)

	switch cfg.Store.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		rs = db
		sink = audit.MultiSink{db, sink}
		closers = append(closers, db)
	case "memory":
		rs = store.NewInMemoryStore()
	case "none":
		rs = noStore{}
	}

	g, err := New(func(o *Options) {
		o.Backends = backends
		o.Store = rs
		o.Sink = sink
		o.Logger = logger
		o.Closers = closers
	})
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}

	logger.Info("genmesh configured", "backends", g.Registry().Names(), "store", cfg.Store.Driver)

	return g, nil
}

func backendFromConfig(defaults config.QueueConfig, b config.BackendConfig, exec core.Executor) registry.Backend {
	out := registry.Backend{
		Name:        b.Name,
		Executor:    exec,
		Pricing:     b.Pricing,
		MaxTries:    b.MaxTries,
		Concurrency: b.Concurrency,
		Timeout:     b.Timeout(),
	}
	if out.MaxTries == 0 {
		out.MaxTries = defaults.MaxTries
	}
	if out.Concurrency == 0 {
		out.Concurrency = defaults.Concurrency
	}
	if out.Timeout == 0 {
		out.Timeout = config.BackendConfig{TimeoutSeconds: defaults.TimeoutSeconds}.Timeout()
	}
	return out
}

func newOpenAIExecutor(b config.BackendConfig) (core.Executor, error) {
	return openaimodel.NewExecutor(func(o *openaimodel.Options) {
		o.APIKey = b.APIKey
		o.BaseURL = b.BaseURL
		if b.Voice != "" {
			o.Voice = b.Voice
		}
		if b.Size != "" {
			o.ImageSize = b.Size
		}
		if b.Model == "" {
			return
		}
		switch core.GenerationKind(b.Kind) {
		case core.KindSpeech:
			o.SpeechModel = b.Model
		case core.KindImage:
			o.ImageModel = b.Model
		case core.KindEmbedding:
			o.EmbeddingModel = b.Model
		default:
			o.Model = b.Model
		}
	}), nil
}

func newAnthropicExecutor(b config.BackendConfig) (core.Executor, error) {
	if k := core.GenerationKind(b.Kind); k != core.KindText {
		return nil, model.UnsupportedKind("anthropic", k)
	}
	return anthropicmodel.NewExecutor(func(o *anthropicmodel.Options) {
		o.APIKey = b.APIKey
		o.BaseURL = b.BaseURL
		if b.Model != "" {
			o.Model = anthropic.Model(b.Model)
		}
	}), nil
}

// noStore backs the "none" store driver: nothing is found, nothing is kept.
type noStore struct{}

func (noStore) Find(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (noStore) Insert(context.Context, string, []byte) error { return nil }
