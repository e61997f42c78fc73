package canvas

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"teamart/internal/fonts"
	"teamart/internal/pkg/errors"
	"teamart/internal/pkg/metrics"
)

func newTestRenderer(t *testing.T, layout Layout) *Renderer {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "GoRegular.ttf"), goregular.TTF, 0o644); err != nil {
		t.Fatal(err)
	}
	return New(fonts.NewResolver(dir), Options{Layout: layout})
}

func decode(t *testing.T, b []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func nrgba(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

// inkBox returns the bounding box of pixels whose alpha is not zero.
func inkBox(img image.Image) image.Rectangle {
	b := img.Bounds()
	box := image.Rectangle{}
	first := true
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a == 0 {
				continue
			}
			p := image.Rect(x, y, x+1, y+1)
			if first {
				box, first = p, false
			} else {
				box = box.Union(p)
			}
		}
	}
	return box
}

func TestRenderDimensions(t *testing.T) {
	r := newTestRenderer(t, LayoutTopLeft)

	sizes := [][2]int{{1, 1}, {2, 3}, {100, 50}, {400, 200}, {7, 640}}
	for _, s := range sizes {
		out, err := r.Render(RenderSpec{
			Text: "Hello", Width: s[0], Height: s[1], FontSize: 24,
			TextColor: "#000000", BackgroundColor: "#FFFFFF", FontName: "GoRegular.ttf",
		})
		if err != nil {
			t.Fatalf("%dx%d: %v", s[0], s[1], err)
		}
		b := decode(t, out).Bounds()
		if b.Dx() != s[0] || b.Dy() != s[1] {
			t.Errorf("expected %dx%d, got %dx%d", s[0], s[1], b.Dx(), b.Dy())
		}
	}
}

func TestRenderDegenerateSize(t *testing.T) {
	r := newTestRenderer(t, LayoutCentered)

	for _, s := range [][2]int{{0, 0}, {0, 10}, {10, 0}} {
		out, err := r.Render(RenderSpec{
			Text: "Hi", Width: s[0], Height: s[1], FontSize: 12,
			TextColor: "#000", BackgroundColor: "#fff", FontName: "GoRegular.ttf",
		})
		if err != nil {
			t.Errorf("%dx%d: expected no error, got %v", s[0], s[1], err)
		}
		if len(out) != 0 {
			t.Errorf("%dx%d: expected empty output, got %d bytes", s[0], s[1], len(out))
		}
	}
}

func TestRenderValidation(t *testing.T) {
	r := newTestRenderer(t, LayoutTopLeft)

	tests := []struct {
		name string
		spec RenderSpec
	}{
		{"negative width", RenderSpec{Width: -1, Height: 10, FontSize: 10, TextColor: "#000", BackgroundColor: "#fff"}},
		{"bad text color", RenderSpec{Width: 10, Height: 10, FontSize: 10, TextColor: "#12", BackgroundColor: "#fff"}},
		{"bad background", RenderSpec{Width: 10, Height: 10, FontSize: 10, TextColor: "#000", BackgroundColor: "nope"}},
		{"huge canvas", RenderSpec{Width: 1 << 22, Height: 1 << 22, FontSize: 10, TextColor: "#000", BackgroundColor: "#fff"}},
		{"overflowing canvas", RenderSpec{Width: math.MaxInt, Height: math.MaxInt, FontSize: 10, TextColor: "#000", BackgroundColor: "#fff"}},
		{"huge font", RenderSpec{Width: 10, Height: 10, FontSize: 2000000, TextColor: "#000", BackgroundColor: "#fff", FontName: "GoRegular.ttf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Render(tt.spec)
			if !errors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRenderLimits(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "GoRegular.ttf"), goregular.TTF, 0o644); err != nil {
		t.Fatal(err)
	}
	r := New(fonts.NewResolver(dir), Options{MaxPixels: 100 * 50, MaxFontSize: 40})

	base := RenderSpec{Text: "Hi", TextColor: "#000", BackgroundColor: "#fff", FontName: "GoRegular.ttf"}

	tests := []struct {
		name          string
		width, height int
		fontSize      int
		wantErr       bool
	}{
		{"at pixel limit", 100, 50, 20, false},
		{"over pixel limit", 101, 50, 20, true},
		{"tall and thin", 1, 5001, 20, true},
		{"zero width with huge height", 0, 1 << 30, 20, false},
		{"at font limit", 100, 50, 40, false},
		{"over font limit", 100, 50, 41, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := base
			spec.Width, spec.Height, spec.FontSize = tt.width, tt.height, tt.fontSize

			_, err := r.Render(spec)
			if tt.wantErr && !errors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestRenderLimitDefaults(t *testing.T) {
	r := New(fonts.NewResolver(t.TempDir()), Options{MaxFontSize: fonts.MaxSize * 4})
	if r.maxPixels != DefaultMaxPixels {
		t.Errorf("expected default pixel limit, got %d", r.maxPixels)
	}
	if r.maxFontSize != fonts.MaxSize {
		t.Errorf("expected the font limit clamped to %d, got %d", fonts.MaxSize, r.maxFontSize)
	}
}

func TestRenderTransparentBackground(t *testing.T) {
	for _, bg := range []string{"transparent", "TRANSPARENT", "#00000000"} {
		t.Run(bg, func(t *testing.T) {
			r := newTestRenderer(t, LayoutCentered)
			out, err := r.Render(RenderSpec{
				Text: "Gol", Width: 160, Height: 80, FontSize: 40,
				TextColor: "#FF0000", BackgroundColor: bg, FontName: "GoRegular.ttf",
			})
			if err != nil {
				t.Fatal(err)
			}
			img := decode(t, out)

			// Every visible pixel must be a text stroke: no fill was painted.
			var ink, total int
			b := img.Bounds()
			for y := b.Min.Y; y < b.Max.Y; y++ {
				for x := b.Min.X; x < b.Max.X; x++ {
					total++
					c := nrgba(img, x, y)
					if c.A == 0 {
						continue
					}
					ink++
					if c.R != 0xff || c.G != 0 || c.B != 0 {
						t.Fatalf("pixel (%d,%d) is not a red stroke: %v", x, y, c)
					}
				}
			}
			if ink == 0 {
				t.Fatal("expected glyph pixels")
			}
			if ink*2 > total {
				t.Errorf("too many opaque pixels for a transparent canvas: %d of %d", ink, total)
			}
			if c := nrgba(img, 0, 0); c.A != 0 {
				t.Errorf("corner should be transparent, got %v", c)
			}
		})
	}
}

func TestRenderTopLeftExample(t *testing.T) {
	// The default font is not installed in tests, so this also exercises the
	// built-in fallback face.
	m := metrics.New()
	r := New(fonts.NewResolver(t.TempDir()), Options{Layout: LayoutTopLeft, Metrics: m})

	out, err := r.Render(RenderSpec{
		Text: "Hi", Width: 100, Height: 50, FontSize: 20,
		TextColor: "#FF0000", BackgroundColor: "#00FF00", FontName: "DejaVuSans.ttf",
	})
	if err != nil {
		t.Fatal(err)
	}

	img := decode(t, out)
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Fatalf("expected 100x50, got %v", b)
	}

	green := color.NRGBA{G: 0xff, A: 0xff}
	red := color.NRGBA{R: 0xff, A: 0xff}

	var reds int
	var minX, minY = 100, 50
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			c := nrgba(img, x, y)
			if c.A != 0xff {
				t.Fatalf("pixel (%d,%d) is not opaque: %v", x, y, c)
			}
			if c == red {
				reds++
				minX = min(minX, x)
				minY = min(minY, y)
			}
		}
	}

	if c := nrgba(img, 99, 49); c != green {
		t.Errorf("expected green background, got %v", c)
	}
	if reds == 0 {
		t.Fatal("expected red glyph pixels")
	}
	// Top-left anchoring keeps the glyphs hugging the origin.
	if minX > 3 || minY > 4 {
		t.Errorf("expected text near the origin, first ink at (%d,%d)", minX, minY)
	}
}

func TestCenteredOriginMatchesCanvasCenter(t *testing.T) {
	res := fonts.NewResolver(t.TempDir())
	dir := res.Dir()
	if err := os.WriteFile(filepath.Join(dir, "GoRegular.ttf"), goregular.TTF, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		text string
		size float64
		w, h int
	}{
		{"Hi", 20, 100, 50},
		{"Palmeiras", 48, 400, 200},
		{"gyp", 33, 123, 77},
		{"two\nlines", 24, 300, 300},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			face := res.Resolve("GoRegular.ttf", tt.size).Face
			lines := strings.Split(tt.text, "\n")

			x, y := origin(face, lines, tt.w, tt.h, LayoutCentered)
			box := inkBounds(face, lines)

			cx := x + (float64(box.Min.X)+float64(box.Max.X))/2/64
			cy := y + (float64(box.Min.Y)+float64(box.Max.Y))/2/64

			if math.Abs(cx-float64(tt.w)/2) > 1 || math.Abs(cy-float64(tt.h)/2) > 1 {
				t.Errorf("ink center (%.2f,%.2f) is not within 1px of (%d,%d)", cx, cy, tt.w/2, tt.h/2)
			}
		})
	}
}

func TestCenteredRenderIsVisuallyCentered(t *testing.T) {
	r := newTestRenderer(t, LayoutCentered)

	out, err := r.Render(RenderSpec{
		Text: "Hi", Width: 200, Height: 100, FontSize: 40,
		TextColor: "#000000", BackgroundColor: "transparent", FontName: "GoRegular.ttf",
	})
	if err != nil {
		t.Fatal(err)
	}

	box := inkBox(decode(t, out))
	cx := float64(box.Min.X+box.Max.X) / 2
	cy := float64(box.Min.Y+box.Max.Y) / 2

	// Antialiasing can extend the rasterized box by a pixel on either side.
	if math.Abs(cx-100) > 2 || math.Abs(cy-50) > 2 {
		t.Errorf("rasterized ink center (%.1f,%.1f) too far from (100,50)", cx, cy)
	}
}

func TestTopLeftOriginUsesAscent(t *testing.T) {
	res := fonts.NewResolver(t.TempDir()).Resolve("", 0)
	x, y := origin(res.Face, []string{"Hi"}, 100, 50, LayoutTopLeft)

	if x != 0 {
		t.Errorf("expected x=0, got %v", x)
	}
	if want := float64(res.Face.Metrics().Ascent) / 64; y != want {
		t.Errorf("expected baseline at ascent %v, got %v", want, y)
	}
}

func TestEmptyTextRenders(t *testing.T) {
	r := newTestRenderer(t, LayoutCentered)
	out, err := r.Render(RenderSpec{
		Text: "", Width: 10, Height: 10, FontSize: 10,
		TextColor: "#000", BackgroundColor: "white", FontName: "GoRegular.ttf",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c := nrgba(decode(t, out), 5, 5); c != (color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}) {
		t.Errorf("expected white canvas, got %v", c)
	}
}

func TestParseLayout(t *testing.T) {
	tests := []struct {
		in      string
		want    Layout
		wantErr bool
	}{
		{"", LayoutTopLeft, false},
		{"topleft", LayoutTopLeft, false},
		{"CENTER", LayoutCentered, false},
		{"centered", LayoutCentered, false},
		{"diagonal", LayoutTopLeft, true},
	}

	for _, tt := range tests {
		got, err := ParseLayout(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLayout(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLayout(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
