// Command render draws text into a PNG file without starting the API.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"

	"teamart/internal/canvas"
	"teamart/internal/config"
	"teamart/internal/fonts"
	"teamart/internal/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{
		Level:       config.Env("LOG_LEVEL", "warn"),
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "teamart-render",
	})
	err := run(os.Args[1:], os.Stdout, os.Stderr, log)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.LogFatal("render failed", err)
	}
}

type options struct {
	spec            canvas.RenderSpec
	fontsDir        string
	center          bool
	backgroundImage string
	output          string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.spec.Text, "text", "", "text to draw (required)")
	fs.IntVar(&o.spec.Width, "width", 400, "canvas width in pixels")
	fs.IntVar(&o.spec.Height, "height", 200, "canvas height in pixels")
	fs.IntVar(&o.spec.FontSize, "font-size", 32, "font size in pixels")
	fs.StringVar(&o.spec.TextColor, "text-color", "#000000", "text color")
	fs.StringVar(&o.spec.BackgroundColor, "background", "#FFFFFF", "background color or transparent")
	fs.StringVar(&o.spec.FontName, "font", config.Env("DEFAULT_FONT", "DejaVuSans.ttf"), "font file name inside the fonts directory")
	fs.StringVar(&o.fontsDir, "fonts-dir", config.Env("FONTS_DIR", "fonts"), "fonts directory")
	fs.BoolVar(&o.center, "center", false, "center the text on the canvas")
	fs.StringVar(&o.backgroundImage, "background-image", "", "image to draw the text over, resized to the canvas")
	fs.StringVar(&o.output, "output", "output.png", "output file")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.spec.Text == "" {
		return o, fmt.Errorf("-text is required")
	}
	return o, nil
}

// run writes progress to stdout and flag usage to stderr.
func run(args []string, stdout, stderr io.Writer, log *logger.Logger) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	layout := canvas.LayoutTopLeft
	if o.center {
		layout = canvas.LayoutCentered
	}
	r := canvas.New(fonts.NewResolver(o.fontsDir), canvas.Options{Layout: layout, Log: log})

	if o.backgroundImage == "" {
		b, err := r.Render(o.spec)
		if err != nil {
			return err
		}
		if len(b) == 0 {
			return fmt.Errorf("canvas %dx%d has no pixels to write", o.spec.Width, o.spec.Height)
		}
		if err := os.WriteFile(o.output, b, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s (%d bytes)\n", o.output, len(b))
		return nil
	}

	img, err := composite(r, o.spec, o.backgroundImage)
	if err != nil {
		return err
	}
	if err := imaging.Save(img, o.output); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", o.output)
	return nil
}

// composite draws the text on a transparent layer and lays it over the
// background image scaled to the canvas.
func composite(r *canvas.Renderer, spec canvas.RenderSpec, bgPath string) (image.Image, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("canvas must have a positive size to composite, got %dx%d", spec.Width, spec.Height)
	}

	bg, err := imaging.Open(bgPath)
	if err != nil {
		return nil, fmt.Errorf("open background image: %w", err)
	}

	spec.BackgroundColor = "transparent"
	frame, err := r.Draw(spec)
	if err != nil {
		return nil, err
	}

	base := imaging.Fill(bg, spec.Width, spec.Height, imaging.Center, imaging.Lanczos)
	return imaging.Overlay(base, frame.Image, image.Pt(0, 0), 1.0), nil
}
