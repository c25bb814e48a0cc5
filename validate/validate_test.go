package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/genmesh/core"
	"github.com/hupe1980/genmesh/internal/util"
	"github.com/hupe1980/genmesh/model"
)

type question struct {
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices"`
	Answer  int      `json:"answer"`
	Hint    string   `json:"hint,omitempty"`
}

type quiz struct {
	Title    string   `json:"title"`
	Question question `json:"question"`
}

func text(s string) core.Result {
	return core.Result{Output: model.TextOutput{Text: s}}
}

func TestNonEmpty(t *testing.T) {
	check := NonEmpty()

	assert.ErrorIs(t, check(core.Result{}), ErrEmptyOutput)
	assert.ErrorIs(t, check(text("  ")), ErrEmptyOutput)
	assert.ErrorIs(t, check(core.Result{Output: model.SpeechOutput{}}), ErrEmptyOutput)
	assert.ErrorIs(t, check(core.Result{Output: model.EmbeddingOutput{Vectors: [][]float64{{}}}}), ErrEmptyOutput)
	assert.ErrorIs(t, check(core.Result{Output: model.ImageOutput{}}), ErrEmptyOutput)

	assert.NoError(t, check(text("hi")))
	assert.NoError(t, check(core.Result{Output: model.ImageOutput{URL: "https://example.com/a.png"}}))
	assert.NoError(t, check(core.Result{Output: 42}))
}

func TestJSONSchema(t *testing.T) {
	check := JSONSchema(quiz{})

	ok := `{"title":"Go","question":{"prompt":"2+2?","choices":["3","4"],"answer":1}}`
	assert.NoError(t, check(text(ok)))
	assert.NoError(t, check(text("```json\n"+ok+"\n```")), "code fences are stripped")

	err := check(text(`{"title":"Go"}`))
	var ve *util.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "question", ve.Field)

	err = check(text(`{"title":"Go","question":{"prompt":"2+2?","choices":["4"],"answer":"four"}}`))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "question.answer", ve.Field)

	assert.ErrorContains(t, check(text("not json")), "not valid JSON")
	assert.Error(t, check(text(`["array"]`)))
	assert.ErrorContains(t, check(core.Result{Output: 3}), "no text body")
}

func TestJSONPaths(t *testing.T) {
	check := JSONPaths("title", "question.choices.1")

	assert.NoError(t, check(text(`{"title":"t","question":{"choices":["a","b"]}}`)))

	err := check(text(`{"title":"t","question":{"choices":["a"]}}`))
	var ve *util.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "question.choices.1", ve.Field)
}

func TestJSONBody(t *testing.T) {
	body, err := JSONBody("```\n{\"a\":1}\n```")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(body))

	body, err = JSONBody([]byte(` {"a":1} `))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(body))
}
