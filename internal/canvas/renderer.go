// Package canvas rasterizes text onto a PNG canvas.
package canvas

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"teamart/internal/fonts"
	"teamart/internal/pkg/errors"
	"teamart/internal/pkg/logger"
	"teamart/internal/pkg/metrics"
)

// Layout selects where text is placed on the canvas.
type Layout int

const (
	// LayoutTopLeft puts the top of the first line on the top edge, flush left.
	LayoutTopLeft Layout = iota
	// LayoutCentered centers the ink box of the text on the canvas.
	LayoutCentered
)

func (l Layout) String() string {
	if l == LayoutCentered {
		return "center"
	}
	return "topleft"
}

// ParseLayout maps a query or flag value to a Layout. Empty means top-left.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "topleft", "top-left", "origin":
		return LayoutTopLeft, nil
	case "center", "centered", "centre":
		return LayoutCentered, nil
	default:
		return LayoutTopLeft, errors.ValidationField("layout", fmt.Sprintf("unknown layout %q", s))
	}
}

// RenderSpec describes one render. It is not modified by the renderer.
type RenderSpec struct {
	Text            string
	Width           int
	Height          int
	FontSize        int
	TextColor       string
	BackgroundColor string
	FontName        string
}

// Frame is a drawn canvas before encoding.
type Frame struct {
	Image image.Image
	Font  fonts.Resolution
}

// DefaultMaxPixels caps the canvas area, 4096x4096 worth of RGBA.
const DefaultMaxPixels = 4096 * 4096

type Options struct {
	Layout  Layout
	Log     *logger.Logger
	Metrics *metrics.Metrics
	// MaxPixels bounds Width*Height. Zero means DefaultMaxPixels.
	MaxPixels int
	// MaxFontSize bounds FontSize. Zero means fonts.MaxSize; larger values
	// are clamped to it.
	MaxFontSize int
}

type Renderer struct {
	fonts       *fonts.Resolver
	layout      Layout
	log         *logger.Logger
	metrics     *metrics.Metrics
	maxPixels   int
	maxFontSize int
}

func New(resolver *fonts.Resolver, opts Options) *Renderer {
	log := opts.Log
	if log == nil {
		log = logger.Discard()
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	if opts.MaxFontSize <= 0 || opts.MaxFontSize > fonts.MaxSize {
		opts.MaxFontSize = fonts.MaxSize
	}
	return &Renderer{
		fonts:       resolver,
		layout:      opts.Layout,
		log:         log.WithComponent("canvas"),
		metrics:     opts.Metrics,
		maxPixels:   opts.MaxPixels,
		maxFontSize: opts.MaxFontSize,
	}
}

// WithLayout returns a copy of the renderer using layout l.
func (r *Renderer) WithLayout(l Layout) *Renderer {
	cp := *r
	cp.layout = l
	return &cp
}

// Layout returns the configured layout.
func (r *Renderer) Layout() Layout { return r.layout }

// Render draws spec and returns PNG bytes. A canvas with a zero dimension
// yields an empty slice and no error.
func (r *Renderer) Render(spec RenderSpec) ([]byte, error) {
	frame, err := r.Draw(spec)
	if err != nil {
		r.metrics.Render(metrics.OutcomeFailure)
		return nil, err
	}
	if frame.Image == nil {
		r.metrics.Render(metrics.OutcomeSuccess)
		return []byte{}, nil
	}

	b, err := Encode(frame.Image)
	if err != nil {
		r.metrics.Render(metrics.OutcomeFailure)
		return nil, err
	}
	r.metrics.Render(metrics.OutcomeSuccess)
	return b, nil
}

// Draw rasterizes spec. Frame.Image is nil for a zero-area canvas.
func (r *Renderer) Draw(spec RenderSpec) (frame Frame, err error) {
	if err := r.checkLimits(spec); err != nil {
		return Frame{}, err
	}

	fg, err := ParseColor(spec.TextColor)
	if err != nil {
		return Frame{}, errors.WrapWithCode(err, errors.CodeValidation, "canvas.draw", "invalid text_color")
	}

	transparent := IsTransparent(spec.BackgroundColor)
	var bg color.NRGBA
	if !transparent {
		bg, err = ParseColor(spec.BackgroundColor)
		if err != nil {
			return Frame{}, errors.WrapWithCode(err, errors.CodeValidation, "canvas.draw", "invalid background_color")
		}
	}

	res := r.fonts.Resolve(spec.FontName, float64(spec.FontSize))
	if res.Fallback() {
		r.metrics.FontFallback()
		r.log.Debug("font fallback", "font", spec.FontName, "reason", res.Reason)
	}
	frame.Font = res

	if spec.Width == 0 || spec.Height == 0 {
		return frame, nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			frame = Frame{}
			err = errors.Newf(errors.CodeRenderFailure, "failed to draw text: %v", rec)
		}
	}()

	dc := gg.NewContext(spec.Width, spec.Height)
	if !transparent {
		// An opaque canvas ignores any alpha in the background value.
		bg.A = 0xff
		dc.SetColor(bg)
		dc.Clear()
	}

	dc.SetFontFace(res.Face)
	dc.SetColor(fg)

	lines := strings.Split(spec.Text, "\n")
	x, y := origin(res.Face, lines, spec.Width, spec.Height, r.layout)
	step := lineStep(res.Face)
	for i, line := range lines {
		dc.DrawString(line, x, y+float64(i)*step)
	}

	frame.Image = dc.Image()
	return frame, nil
}

// checkLimits rejects sizes that cannot be allocated. The runtime aborts the
// process on an allocation it cannot satisfy, so this must run before the
// canvas or the face exist.
func (r *Renderer) checkLimits(spec RenderSpec) error {
	if spec.Width < 0 || spec.Height < 0 {
		return errors.Validation(fmt.Sprintf("canvas size must not be negative, got %dx%d", spec.Width, spec.Height))
	}
	if spec.Width > 0 && spec.Height > r.maxPixels/spec.Width {
		return errors.Validation(fmt.Sprintf("canvas %dx%d exceeds the limit of %d pixels", spec.Width, spec.Height, r.maxPixels)).
			WithField("max_pixels", r.maxPixels)
	}
	if spec.FontSize > r.maxFontSize {
		return errors.ValidationField("font_size", fmt.Sprintf("font_size must be at most %d, got %d", r.maxFontSize, spec.FontSize))
	}
	return nil
}

// Encode serializes img as PNG.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeRenderFailure, "canvas.encode", "failed to encode png")
	}
	return buf.Bytes(), nil
}

func lineStep(face font.Face) float64 {
	return float64(face.Metrics().Height) / 64
}

// inkBounds is the union of the glyph boxes of every line, relative to the
// baseline origin of the first line.
func inkBounds(face font.Face, lines []string) fixed.Rectangle26_6 {
	var box fixed.Rectangle26_6
	step := face.Metrics().Height
	for i, line := range lines {
		b, _ := font.BoundString(face, line)
		if b.Empty() {
			continue
		}
		off := fixed.Point26_6{Y: step * fixed.Int26_6(i)}
		b = b.Add(off)
		if box.Empty() {
			box = b
		} else {
			box = box.Union(b)
		}
	}
	return box
}

// origin returns the baseline start of the first line.
func origin(face font.Face, lines []string, w, h int, layout Layout) (float64, float64) {
	if layout != LayoutCentered {
		return 0, float64(face.Metrics().Ascent) / 64
	}

	box := inkBounds(face, lines)
	if box.Empty() {
		return float64(w) / 2, float64(h) / 2
	}

	cx := (float64(box.Min.X) + float64(box.Max.X)) / 2 / 64
	cy := (float64(box.Min.Y) + float64(box.Max.Y)) / 2 / 64
	return math.Round(float64(w)/2 - cx), math.Round(float64(h)/2 - cy)
}
