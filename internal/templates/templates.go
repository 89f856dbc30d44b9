// Package templates resolves question/answer formats and stylesheets for a card.
//
// Modern stores keep template and notetype configs as opaque blobs. When a
// blob is not a JSON document there is no structural separator between the
// question and answer formats, so two named fallback rules apply:
//
//   - SplitRule: split at the first unit separator, else at the first blank line.
//   - CSSTrimRule: cut raw stylesheet text at the first LaTeX preamble marker.
//
// Both may misparse content that itself contains a blank line or the marker.
package templates

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/starford/decksmith/internal/apperr"
	"github.com/starford/decksmith/internal/models"
)

// LatexMarker starts the trailing LaTeX preamble stored after the stylesheet.
const LatexMarker = `\documentclass`

var blankLineRe = regexp.MustCompile(`\r?\n[ \t]*\r?\n`)

// Pick returns the template for ordinal, falling back to ordinal 0. ok is
// false when neither exists.
func Pick(tmpls []models.Template, ordinal int) (models.Template, bool) {
	var zero *models.Template
	for i := range tmpls {
		switch tmpls[i].Ordinal {
		case ordinal:
			return tmpls[i], true
		case 0:
			if zero == nil {
				zero = &tmpls[i]
			}
		}
	}
	if zero != nil {
		return *zero, true
	}
	return models.Template{}, false
}

type formats struct {
	Qfmt    string `json:"qfmt"`
	Afmt    string `json:"afmt"`
	QFormat string `json:"q_format"`
	AFormat string `json:"a_format"`
}

// Formats returns the question and answer formats of t, decoding its raw
// config when the formats are not already populated.
func Formats(t models.Template) (string, string) {
	if t.QuestionFormat != "" || t.AnswerFormat != "" || t.Raw == "" {
		return t.QuestionFormat, t.AnswerFormat
	}
	raw := strings.ToValidUTF8(t.Raw, "")

	if trimmed := strings.TrimSpace(raw); strings.HasPrefix(trimmed, "{") {
		var f formats
		if err := json.Unmarshal([]byte(trimmed), &f); err == nil {
			q, a := f.Qfmt, f.Afmt
			if q == "" && a == "" {
				q, a = f.QFormat, f.AFormat
			}
			return q, a
		}
	}
	return SplitRule(raw)
}

// SplitRule splits combined template text into question and answer parts.
func SplitRule(raw string) (string, string) {
	if i := strings.Index(raw, models.FieldSeparator); i >= 0 {
		return strings.TrimSpace(raw[:i]), strings.TrimSpace(raw[i+1:])
	}
	if loc := blankLineRe.FindStringIndex(raw); loc != nil {
		return strings.TrimSpace(raw[:loc[0]]), strings.TrimSpace(raw[loc[1]:])
	}
	return strings.TrimSpace(raw), ""
}

// Stylesheet extracts the css of a notetype config. A JSON document yields its
// "css" property; anything else is treated as raw text and passed through
// CSSTrimRule. A config that looks like JSON but does not parse degrades to
// the raw rule and returns a parse error alongside the result.
func Stylesheet(config string) (string, error) {
	raw := strings.ToValidUTF8(config, "")
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var doc struct {
			CSS string `json:"css"`
		}
		err := json.Unmarshal([]byte(trimmed), &doc)
		if err == nil {
			return doc.CSS, nil
		}
		return CSSTrimRule(raw), apperr.E(apperr.KindParse, "templates: notetype config", err)
	}
	return CSSTrimRule(raw), nil
}

// CSSTrimRule cuts raw stylesheet text at LatexMarker when present.
func CSSTrimRule(raw string) string {
	if i := strings.Index(raw, LatexMarker); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

// Resolution is the renderable part of one card.
type Resolution struct {
	Ordinal        int
	QuestionFormat string
	AnswerFormat   string
	Stylesheet     string
}

// Resolve picks the template for ordinal among tmpls and decodes the
// notetype's stylesheet. The returned error only reports a degraded
// stylesheet decode; the Resolution is always usable.
func Resolve(tmpls []models.Template, nt *models.Notetype, ordinal int) (Resolution, error) {
	res := Resolution{Ordinal: ordinal}
	if t, ok := Pick(tmpls, ordinal); ok {
		res.QuestionFormat, res.AnswerFormat = Formats(t)
	}
	if nt == nil {
		return res, nil
	}
	css, err := Stylesheet(nt.Config)
	res.Stylesheet = css
	return res, err
}
