package main

import (
	"bytes"
	"errors"
	"flag"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"teamart/internal/canvas"
	"teamart/internal/pkg/logger"
)

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"-text", "Hi", "-width", "64", "-center", "-background", "transparent"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if o.spec.Text != "Hi" || o.spec.Width != 64 || o.spec.Height != 200 || !o.center {
		t.Errorf("unexpected options %+v", o)
	}
	if o.spec.BackgroundColor != "transparent" || o.spec.FontSize != 32 {
		t.Errorf("unexpected spec %+v", o.spec)
	}

	if _, err := parseFlags([]string{"-width", "10"}, io.Discard); err == nil {
		t.Error("expected an error without -text")
	}
	if _, err := parseFlags([]string{"-text", "a", "-width", "wide"}, io.Discard); err == nil {
		t.Error("expected an error for a non integer width")
	}
}

func TestRunWritesPNG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.png")
	var stdout bytes.Buffer

	err := run([]string{"-text", "Hi", "-width", "40", "-height", "20", "-fonts-dir", t.TempDir(), "-output", out}, &stdout, io.Discard, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}

	img, err := imaging.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Errorf("unexpected bounds %v", b)
	}
	if !strings.Contains(stdout.String(), "out.png") {
		t.Errorf("unexpected output %q", stdout.String())
	}
}

func TestRunFlagErrorsGoToStderr(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantErr    error
		wantStderr string
	}{
		{"unknown flag", []string{"-text", "a", "-colour", "red"}, nil, "flag provided but not defined: -colour"},
		{"bad integer", []string{"-text", "a", "-height", "tall"}, nil, "invalid value \"tall\" for flag -height"},
		{"help", []string{"-h"}, flag.ErrHelp, "-background-image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(tt.args, &stdout, &stderr, logger.Discard())
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if !strings.Contains(stderr.String(), tt.wantStderr) {
				t.Errorf("expected stderr to contain %q, got %q", tt.wantStderr, stderr.String())
			}
			if stdout.Len() != 0 {
				t.Errorf("expected nothing on stdout, got %q", stdout.String())
			}
		})
	}
}

func TestRunRejectsEmptyCanvas(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.png")
	err := run([]string{"-text", "Hi", "-width", "0", "-fonts-dir", t.TempDir(), "-output", out}, io.Discard, io.Discard, logger.Discard())
	if err == nil {
		t.Fatal("expected an error for a zero width canvas")
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Errorf("expected no output file, got %v", statErr)
	}
}

func TestRunComposite(t *testing.T) {
	dir := t.TempDir()
	bgPath := filepath.Join(dir, "bg.png")
	bg := imaging.New(10, 10, color.NRGBA{B: 0xff, A: 0xff})
	if err := imaging.Save(bg, bgPath); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out.png")
	err := run([]string{
		"-text", "Hi", "-width", "60", "-height", "30", "-text-color", "#FF0000",
		"-fonts-dir", dir, "-background-image", bgPath, "-output", out,
	}, io.Discard, io.Discard, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}

	img, err := imaging.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 60 || b.Dy() != 30 {
		t.Fatalf("unexpected bounds %v", b)
	}

	var blue, red int
	for y := 0; y < 30; y++ {
		for x := 0; x < 60; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			switch {
			case c.B > 0xf0 && c.R < 0x10:
				blue++
			case c.R > 0xf0 && c.B < 0x10:
				red++
			}
		}
	}
	if blue == 0 || red == 0 {
		t.Errorf("expected blue background and red text, got %d blue, %d red", blue, red)
	}
}

func TestCompositeRejectsEmptyCanvas(t *testing.T) {
	_, err := composite(nil, canvas.RenderSpec{Text: "x", Width: 0, Height: 10}, "ignored.png")
	if err == nil {
		t.Error("expected an error for a zero width canvas")
	}
}
