package templates

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/decksmith/internal/apperr"
	"github.com/starford/decksmith/internal/models"
)

func TestPick_ExactAndFallback(t *testing.T) {
	tmpls := []models.Template{
		{Ordinal: 0, QuestionFormat: "q0", AnswerFormat: "a0"},
		{Ordinal: 2, QuestionFormat: "q2", AnswerFormat: "a2"},
	}
	got, ok := Pick(tmpls, 2)
	require.True(t, ok)
	assert.Equal(t, "q2", got.QuestionFormat)

	got, ok = Pick(tmpls, 5)
	require.True(t, ok)
	assert.Equal(t, "q0", got.QuestionFormat)

	_, ok = Pick([]models.Template{{Ordinal: 3}}, 1)
	assert.False(t, ok)
}

func TestResolve_FallsBackToOrdinalZero(t *testing.T) {
	tmpls := []models.Template{{Ordinal: 0, Raw: `{"qfmt":"{{Front}}","afmt":"{{Back}}"}`}}
	res, err := Resolve(tmpls, &models.Notetype{Config: `{"css":".card{}"}`}, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Ordinal)
	assert.Equal(t, "{{Front}}", res.QuestionFormat)
	assert.Equal(t, "{{Back}}", res.AnswerFormat)
	assert.Equal(t, ".card{}", res.Stylesheet)
}

func TestFormats(t *testing.T) {
	cases := []struct {
		name string
		tmpl models.Template
		q, a string
	}{
		{"populated", models.Template{QuestionFormat: "Q", AnswerFormat: "A", Raw: "ignored"}, "Q", "A"},
		{"json qfmt", models.Template{Raw: `{"qfmt":"Q","afmt":"A"}`}, "Q", "A"},
		{"json q_format", models.Template{Raw: `{"q_format":"Q","a_format":"A"}`}, "Q", "A"},
		{"unit separator", models.Template{Raw: "{{Front}}\x1f{{FrontSide}}\n\n{{Back}}"}, "{{Front}}", "{{FrontSide}}\n\n{{Back}}"},
		{"blank line", models.Template{Raw: "{{Front}}\n\n<hr id=answer>{{Back}}"}, "{{Front}}", "<hr id=answer>{{Back}}"},
		{"blank line with spaces", models.Template{Raw: "Q line\r\n  \r\nA line"}, "Q line", "A line"},
		{"no separator", models.Template{Raw: "{{Front}}"}, "{{Front}}", ""},
		{"empty", models.Template{}, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, a := Formats(tc.tmpl)
			assert.Equal(t, tc.q, q)
			assert.Equal(t, tc.a, a)
		})
	}
}

func TestStylesheet(t *testing.T) {
	css, err := Stylesheet(`{"name":"Basic","css":".card { color: red; }"}`)
	require.NoError(t, err)
	assert.Equal(t, ".card { color: red; }", css)

	css, err = Stylesheet(".card { color: blue; }\n\\documentclass[12pt]{article}\n\\begin{document}")
	require.NoError(t, err)
	assert.Equal(t, ".card { color: blue; }", css)

	css, err = Stylesheet(".plain {}")
	require.NoError(t, err)
	assert.Equal(t, ".plain {}", css)

	css, err = Stylesheet(`{"css": ".broken"`)
	assert.True(t, errors.Is(err, apperr.ErrParse))
	assert.Equal(t, `{"css": ".broken"`, css)
}

func TestResolve_NilNotetype(t *testing.T) {
	res, err := Resolve(nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, Resolution{}, res)
}
