package genmesh

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/genmesh/config"
	"github.com/hupe1980/genmesh/core"
	"github.com/hupe1980/genmesh/dedup"
	"github.com/hupe1980/genmesh/lifecycle"
	"github.com/hupe1980/genmesh/model"
	"github.com/hupe1980/genmesh/store/sqlite"
)

func mockConfig() *config.Config {
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Backends = []config.BackendConfig{
		{Name: "quiz-text", Provider: "mock", Kind: "text", Pricing: core.Pricing{Per: 1, Output: 1}},
		{Name: "quiz-speech", Provider: "mock", Kind: "speech", Concurrency: 5},
	}
	cfg.Domains = []config.DomainConfig{{
		Name:     "quiz",
		Language: "en",
		Backends: map[string]string{"text": "quiz-text", "speech": "quiz-speech"},
	}}
	return cfg
}

func TestFromConfig_Memory(t *testing.T) {
	cfg := mockConfig()
	g, err := FromConfig(cfg, nil)
	require.NoError(t, err)
	defer g.Close()

	assert.Equal(t, []string{"quiz-speech", "quiz-text"}, g.Registry().Names())

	q, err := g.Registry().Queue("quiz-speech")
	require.NoError(t, err)
	assert.Equal(t, 5, q.Concurrency())
	assert.Equal(t, 3, q.MaxTries(), "falls back to defaults.max_tries")

	q, err = g.Registry().Queue("quiz-text")
	require.NoError(t, err)
	assert.Equal(t, 2, q.Concurrency(), "falls back to defaults.concurrency")

	d, ok := cfg.Domain("quiz")
	require.True(t, ok)
	lc := g.NewContext(d.Strategy())

	res, err := g.Run(context.Background(), lc, core.Request{Kind: core.KindText, Payload: model.TextRequest{Prompt: "hi"}})
	require.NoError(t, err)
	out, err := core.OutputAs[model.TextOutput](res)
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hi", out.Text)
	assert.Equal(t, core.StatusCompleted, lc.Status())
}

func TestFromConfig_SQLite(t *testing.T) {
	cfg := mockConfig()
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = filepath.Join(t.TempDir(), "genmesh.db")

	g, err := FromConfig(cfg, nil)
	require.NoError(t, err)

	d, _ := cfg.Domain("quiz")
	c := NewCoalescer[model.TextOutput](g, "quiz")
	newContext := func() *lifecycle.Context {
		return g.NewContext(d.Strategy(), func(o *lifecycle.Options) { o.Reason = "quiz" })
	}
	generate := func(ctx context.Context, lc *lifecycle.Context) (model.TextOutput, error) {
		res, err := g.Generate(ctx, lc, core.Request{Kind: core.KindText, Payload: model.TextRequest{Prompt: "capitals"}})
		if err != nil {
			return model.TextOutput{}, err
		}
		return core.OutputAs[model.TextOutput](res)
	}

	_, src, err := c.Do(context.Background(), "quiz:capitals", newContext, generate)
	require.NoError(t, err)
	assert.Equal(t, dedup.SourceGenerated, src)
	require.NoError(t, g.Close())

	db, err := sqlite.Open(cfg.Store.Path)
	require.NoError(t, err)
	defer db.Close()

	_, ok, err := db.Find(context.Background(), "quiz:capitals")
	require.NoError(t, err)
	assert.True(t, ok, "result survives the process")

	snaps, err := db.Snapshots(context.Background(), "quiz", 10)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, core.StatusCompleted.String(), snaps[0].Status)

	total, err := db.TotalCost(context.Background(), "quiz")
	require.NoError(t, err)
	// "Mock response to: capitals" is four words at one unit each.
	assert.InDelta(t, 4, total, 1e-9)
}

func TestFromConfig_FactoryOverride(t *testing.T) {
	cfg := mockConfig()
	boom := errors.New("no credentials")

	_, err := FromConfig(cfg, Factories{
		"mock": func(b config.BackendConfig) (core.Executor, error) { return nil, boom },
	})
	assert.ErrorIs(t, err, boom)
}

func TestFromConfig_Invalid(t *testing.T) {
	cfg := mockConfig()
	cfg.Backends[0].Provider = "cohere"

	_, err := FromConfig(cfg, nil)
	var verrs config.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestFromConfig_NoneStore(t *testing.T) {
	cfg := mockConfig()
	cfg.Store.Driver = "none"

	g, err := FromConfig(cfg, nil)
	require.NoError(t, err)

	_, ok, err := g.Store().Find(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, g.Store().Insert(context.Background(), "k", []byte("{}")))
	_, ok, _ = g.Store().Find(context.Background(), "k")
	assert.False(t, ok)
}
