// Package combine merges two stored images into one through the image edit
// API.
package combine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"teamart/internal/images"
	"teamart/internal/pkg/errors"
	"teamart/internal/pkg/logger"
	"teamart/internal/ports"
)

const (
	DefaultSize    = "1024x1536"
	DefaultQuality = "medium"

	// ResultFilename is the attachment name of an inline result.
	ResultFilename = "combined_image.png"
)

// Mode selects what the caller receives.
type Mode string

const (
	// ModeInline hands back the local file.
	ModeInline Mode = "inline"
	// ModeStorage uploads the file and hands back its public URL.
	ModeStorage Mode = "storage"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeInline:
		return ModeInline, nil
	case ModeStorage:
		return ModeStorage, nil
	default:
		return "", errors.ValidationField("mode", fmt.Sprintf("unknown combine mode %q", s))
	}
}

type Request struct {
	Image1  string
	Image2  string
	Prompt  string
	Size    string
	Quality string
}

// Result holds either a local file (ModeInline) or a public URL
// (ModeStorage). Close must be called once the file is no longer needed.
type Result struct {
	Path string
	URL  string

	dir string
}

// Close removes the working directory of the combine.
func (r *Result) Close() error {
	if r == nil || r.dir == "" {
		return nil
	}
	return os.RemoveAll(r.dir)
}

type Deps struct {
	Locator  *images.Locator
	Editor   ports.ImageEditor
	Uploader ports.Uploader
	Mode     Mode
	Log      *logger.Logger
	Tracer   trace.Tracer
	Now      func() time.Time
	// TempDir is the parent of per-request working directories. Empty means
	// os.TempDir.
	TempDir string
}

type Service struct {
	locator  *images.Locator
	editor   ports.ImageEditor
	uploader ports.Uploader
	mode     Mode
	log      *logger.Logger
	tracer   trace.Tracer
	now      func() time.Time
	tempDir  string
}

func New(d Deps) *Service {
	s := &Service{
		locator:  d.Locator,
		editor:   d.Editor,
		uploader: d.Uploader,
		mode:     d.Mode,
		log:      d.Log,
		tracer:   d.Tracer,
		now:      d.Now,
		tempDir:  d.TempDir,
	}
	if s.mode == "" {
		s.mode = ModeInline
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	s.log = s.log.WithComponent("combine")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Mode returns the configured output mode.
func (s *Service) Mode() Mode { return s.mode }

// Combine locates both images, sends them to the editor in order and returns
// the produced image. On error nothing is left on disk.
func (s *Service) Combine(ctx context.Context, req Request) (res *Result, err error) {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "combine.Combine", trace.WithAttributes(
			attribute.String("mode", string(s.mode)),
		))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}()
	}

	if err := validate(&req); err != nil {
		return nil, err
	}
	log := s.log.FromContext(ctx)

	first, err := s.locator.Locate(req.Image1)
	if err != nil {
		return nil, err
	}
	second, err := s.locator.Locate(req.Image2)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(s.tempDir, "combine-*")
	if err != nil {
		return nil, errors.Wrap(err, "combine", "failed to create working directory")
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()
	res = &Result{dir: dir}

	log.Info("combining images", "image1", first.Name, "image2", second.Name, "size", req.Size)

	out, err := s.edit(ctx, req, first, second, filepath.Join(dir, ResultFilename))
	if err != nil {
		return nil, errors.Wrap(err, "combine.edit", "image edit failed")
	}

	if s.mode == ModeInline {
		res.Path = out
		return res, nil
	}

	name := fmt.Sprintf("combined_%d_%08x.png", s.now().Unix(), rand.Uint32())
	url, err := s.uploader.Upload(ctx, out, name)
	if err != nil {
		return nil, errors.Wrap(err, "combine.upload", "upload failed")
	}

	log.Info("combined image uploaded", "url", url)
	res.URL = url
	return res, nil
}

// edit owns the two input handles for the duration of the call.
func (s *Service) edit(ctx context.Context, req Request, first, second images.Ref, dst string) (string, error) {
	f1, err := os.Open(first.Path)
	if err != nil {
		return "", errors.Wrap(err, "combine.open", "failed to open "+first.Name)
	}
	defer f1.Close()

	f2, err := os.Open(second.Path)
	if err != nil {
		return "", errors.Wrap(err, "combine.open", "failed to open "+second.Name)
	}
	defer f2.Close()

	return s.editor.Edit(ctx, ports.EditRequest{
		Images: []ports.EditImage{
			{Name: filepath.Base(first.Path), Reader: f1},
			{Name: filepath.Base(second.Path), Reader: f2},
		},
		Prompt:       req.Prompt,
		Size:         req.Size,
		Quality:      req.Quality,
		OutputFormat: "png",
		Destination:  dst,
	})
}

func validate(req *Request) error {
	req.Image1 = strings.TrimSpace(req.Image1)
	req.Image2 = strings.TrimSpace(req.Image2)

	switch {
	case req.Image1 == "":
		return errors.ValidationField("image1_name", "image1_name is required")
	case req.Image2 == "":
		return errors.ValidationField("image2_name", "image2_name is required")
	case strings.TrimSpace(req.Prompt) == "":
		return errors.ValidationField("prompt", "prompt is required")
	}

	if req.Size == "" {
		req.Size = DefaultSize
	}
	if req.Quality == "" {
		req.Quality = DefaultQuality
	}
	return nil
}
