// Package validate provides post-hoc checks for generation results. A check
// runs inside the model queue right after a successful executor call; a
// failing check turns the success into a terminal generation error.
package validate

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/genmesh/core"
	"github.com/hupe1980/genmesh/internal/util"
	"github.com/hupe1980/genmesh/model"
)

// ErrEmptyOutput is returned by NonEmpty.
var ErrEmptyOutput = errors.New("empty output")

// NonEmpty rejects results without usable output.
func NonEmpty() core.Check {
	return func(res core.Result) error {
		if isEmpty(res.Output) {
			return ErrEmptyOutput
		}
		return nil
	}
}

func isEmpty(out any) bool {
	switch o := out.(type) {
	case nil:
		return true
	case string:
		return len(bytes.TrimSpace([]byte(o))) == 0
	case []byte:
		return len(bytes.TrimSpace(o)) == 0
	case model.TextOutput:
		return isEmpty(o.Text)
	case model.SpeechOutput:
		return len(o.Audio) == 0
	case model.ImageOutput:
		return len(o.Data) == 0 && o.URL == ""
	case model.EmbeddingOutput:
		if len(o.Vectors) == 0 {
			return true
		}
		for _, v := range o.Vectors {
			if len(v) == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// JSONSchema rejects text results whose body is not a JSON object matching
// the schema derived from v (a struct value or pointer). Fields without
// omitempty are required; field types are checked recursively.
func JSONSchema(v any) core.Check {
	schema := util.CreateSchema(v)
	return func(res core.Result) error {
		body, err := JSONBody(res.Output)
		if err != nil {
			return err
		}
		return util.ValidateJSON(body, schema)
	}
}

// JSONPaths rejects text results missing any of the given gjson paths
// (e.g. "questions.#.answer").
func JSONPaths(paths ...string) core.Check {
	return func(res core.Result) error {
		body, err := JSONBody(res.Output)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if !gjson.GetBytes(body, p).Exists() {
				return &util.ValidationError{Field: p, Message: "required path is missing"}
			}
		}
		return nil
	}
}

// JSONBody extracts the JSON document of a text output. Markdown code
// fences around the document are stripped.
func JSONBody(out any) ([]byte, error) {
	var raw []byte
	switch o := out.(type) {
	case string:
		raw = []byte(o)
	case []byte:
		raw = o
	case model.TextOutput:
		raw = []byte(o.Text)
	default:
		return nil, fmt.Errorf("output %T has no text body", out)
	}

	body := stripFences(bytes.TrimSpace(raw))
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("output is not valid JSON")
	}
	return body, nil
}

func stripFences(b []byte) []byte {
	if !bytes.HasPrefix(b, []byte("```")) {
		return b
	}
	if nl := bytes.IndexByte(b, '\n'); nl >= 0 {
		b = b[nl+1:]
	} else {
		return b
	}
	b = bytes.TrimSpace(b)
	b = bytes.TrimSuffix(b, []byte("```"))
	return bytes.TrimSpace(b)
}
