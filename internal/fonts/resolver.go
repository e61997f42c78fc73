// Package fonts resolves font files from a fonts directory into faces.
// Resolution never fails: anything that cannot be loaded degrades to the
// built-in 7x13 bitmap face.
package fonts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Source tells where a resolved face came from.
type Source int

const (
	SourceFallback Source = iota
	SourceTrueType
	SourceOpenType
)

func (s Source) String() string {
	switch s {
	case SourceTrueType:
		return "truetype"
	case SourceOpenType:
		return "opentype"
	default:
		return "fallback"
	}
}

// Resolution is the outcome of Resolve. Face is always usable.
type Resolution struct {
	Face   font.Face
	Source Source
	// Path is the file that was loaded, empty on fallback.
	Path string
	// Reason explains a fallback.
	Reason string
}

// MaxSize is the largest size Resolve loads an outline face at.
const MaxSize = 1024

// maskBudget bounds the glyph mask atlas freetype allocates per face.
const maskBudget = 64 << 20

// Fallback reports whether the built-in face was substituted.
func (r Resolution) Fallback() bool { return r.Source == SourceFallback }

type Resolver struct {
	dir string
}

func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir}
}

// Dir returns the fonts directory.
func (r *Resolver) Dir() string { return r.dir }

// Resolve loads dir/name at size pixels. TrueType is tried first, then
// OpenType (CFF outlines), then the built-in face.
func (r *Resolver) Resolve(name string, size float64) Resolution {
	path, err := r.path(name)
	if err != nil {
		return fallback(err.Error())
	}
	if size <= 0 || size > MaxSize {
		return fallback(fmt.Sprintf("invalid font size %v", size))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fallback(err.Error())
	}

	if f, err := parseTrueType(data); err == nil {
		entries, ok := cacheEntries(f, size)
		if !ok {
			return fallback(fmt.Sprintf("%s: glyph bounds too large at size %v", name, size))
		}
		return Resolution{
			Face: truetype.NewFace(f, &truetype.Options{
				Size:              size,
				DPI:               72,
				Hinting:           font.HintingFull,
				GlyphCacheEntries: entries,
			}),
			Source: SourceTrueType,
			Path:   path,
		}
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return fallback(fmt.Sprintf("%s: unsupported font data: %v", name, err))
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return fallback(fmt.Sprintf("%s: %v", name, err))
	}
	return Resolution{Face: face, Source: SourceOpenType, Path: path}
}

// cacheEntries sizes the glyph cache so the mask atlas, which freetype
// allocates up front at the font's full bounding box per entry, stays
// within maskBudget. freetype only honors powers of two. ok is false when
// a single glyph mask would already exceed the budget.
func cacheEntries(f *truetype.Font, size float64) (n int, ok bool) {
	b := f.Bounds(fixed.Int26_6(size*64 + 0.5))
	w := int64(b.Max.X-b.Min.X)>>6 + 2
	h := int64(b.Max.Y-b.Min.Y)>>6 + 2
	fit := int64(maskBudget) / max(w*h, 1)
	if fit < 1 {
		return 0, false
	}
	n = 1
	for n < 512 && int64(n*2) <= fit {
		n *= 2
	}
	return n, true
}

func (r *Resolver) path(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("no font name given")
	}

	root := filepath.Clean(r.dir)
	p := filepath.Join(root, name)
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("font %q is outside the fonts directory", name)
	}
	return p, nil
}

// parseTrueType guards against panics in the parser on hostile input.
func parseTrueType(data []byte) (f *truetype.Font, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			f, err = nil, fmt.Errorf("truetype parser panic: %v", rec)
		}
	}()
	return truetype.Parse(data)
}

func fallback(reason string) Resolution {
	return Resolution{
		Face:   basicfont.Face7x13,
		Source: SourceFallback,
		Reason: reason,
	}
}
