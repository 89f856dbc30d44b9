package media

import (
	"html"
	"net/url"
	"regexp"

	"github.com/starford/decksmith/internal/models"
)

var (
	imgSrcRe = regexp.MustCompile(`(?i)<img[^>]*\ssrc=["']([^"'>]+)["'][^>]*>`)
	soundRe  = regexp.MustCompile(`\[sound:([^\]]+)\]`)
)

// References collects the logical filenames embedded in note fields via
// image source attributes and [sound:...] directives.
func References(notes []models.Note) map[string]struct{} {
	out := make(map[string]struct{})
	for _, n := range notes {
		for _, f := range n.Fields {
			for _, name := range referencesIn(f) {
				out[name] = struct{}{}
			}
		}
	}
	return out
}

// referencesIn returns every candidate name in one field value. Field HTML may
// carry entity- or percent-escaped names, so decoded spellings are added too.
func referencesIn(field string) []string {
	var out []string
	add := func(raw string) {
		out = append(out, raw)
		if un := html.UnescapeString(raw); un != raw {
			out = append(out, un)
		}
		if un, err := url.PathUnescape(raw); err == nil && un != raw {
			out = append(out, un)
		}
	}
	for _, m := range imgSrcRe.FindAllStringSubmatch(field, -1) {
		add(m[1])
	}
	for _, m := range soundRe.FindAllStringSubmatch(field, -1) {
		add(m[1])
	}
	return out
}
