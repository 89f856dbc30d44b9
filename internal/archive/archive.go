// Package archive opens deck containers and classifies their generation.
//
// The member index is built exactly once per opened archive; every later
// pass (snapshot decoding, media extraction, raw member copy) reuses it.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/starford/decksmith/internal/apperr"
	"github.com/starford/decksmith/internal/models"
)

// Well-known member names.
const (
	MemberMeta             = "meta"
	MemberCollectionZstd   = "collection.anki21b"
	MemberCollectionModern = "collection.anki21"
	MemberCollectionLegacy = "collection.anki2"
	MemberMediaIndex       = "media"
)

// Archive is an opened container with its member index.
type Archive struct {
	members map[string]*zip.File
	names   []string
	variant models.Variant
}

// Open parses data as a zip container, indexes its members and classifies the variant.
func Open(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperr.E(apperr.KindArchiveFormat, "archive: open", err)
	}

	a := &Archive{members: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if _, dup := a.members[f.Name]; !dup {
			a.names = append(a.names, f.Name)
		}
		a.members[f.Name] = f
	}
	sort.Strings(a.names)

	v, err := Classify(a.Has)
	if err != nil {
		return nil, err
	}
	a.variant = v
	return a, nil
}

// Classify picks the generation from member presence, by priority:
// marker, then uncompressed modern collection, then legacy collection.
func Classify(has func(name string) bool) (models.Variant, error) {
	switch {
	case has(MemberMeta):
		return models.VariantCompressedModern, nil
	case has(MemberCollectionModern):
		return models.VariantUncompressedModern, nil
	case has(MemberCollectionLegacy):
		return models.VariantLegacy, nil
	}
	return "", apperr.E(apperr.KindArchiveFormat, "archive: classify",
		fmt.Errorf("no %s, %s or %s member", MemberMeta, MemberCollectionModern, MemberCollectionLegacy))
}

// CollectionMember returns the collection member name for a variant.
func CollectionMember(v models.Variant) string {
	switch v {
	case models.VariantCompressedModern:
		return MemberCollectionZstd
	case models.VariantUncompressedModern:
		return MemberCollectionModern
	default:
		return MemberCollectionLegacy
	}
}

// Variant returns the detected generation.
func (a *Archive) Variant() models.Variant { return a.variant }

// Has reports whether a member exists.
func (a *Archive) Has(name string) bool {
	_, ok := a.members[name]
	return ok
}

// Names returns the sorted member names.
func (a *Archive) Names() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// Read returns the full contents of a member.
func (a *Archive) Read(name string) ([]byte, error) {
	f, ok := a.members[name]
	if !ok {
		return nil, apperr.E(apperr.KindArchiveFormat, "archive: read "+name, fmt.Errorf("member missing"))
	}
	rc, err := f.Open()
	if err != nil {
		return nil, apperr.E(apperr.KindIO, "archive: open "+name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, apperr.E(apperr.KindIO, "archive: read "+name, err)
	}
	return data, nil
}
