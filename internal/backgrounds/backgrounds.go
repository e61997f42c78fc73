// Package backgrounds generates a batch of team backgrounds by blending a
// team emblem into randomly chosen pool images.
package backgrounds

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"teamart/internal/images"
	"teamart/internal/pkg/errors"
	"teamart/internal/pkg/logger"
	"teamart/internal/pkg/metrics"
	"teamart/internal/ports"
)

const (
	DefaultCount   = 5
	DefaultSize    = "1024x1024"
	DefaultQuality = "medium"

	// DefaultPrompt is used when Deps.PromptTemplate is empty. {team} is
	// replaced by the team name.
	DefaultPrompt = "make a version of this background using the colors of the {team} emblem, and place the emblem on top blended at 50% opacity"

	teamPlaceholder = "{team}"
)

type Request struct {
	TeamName string
	Size     string
	Quality  string
}

// ItemOutcome records what happened to one selected background.
type ItemOutcome struct {
	Index      int
	Background string
	URL        string
	Err        error
}

// OK reports whether the item produced a URL.
func (o ItemOutcome) OK() bool { return o.Err == nil && o.URL != "" }

type Result struct {
	TeamName string
	URLs     []string
	Items    []ItemOutcome
}

// Count is the number of backgrounds produced.
func (r *Result) Count() int { return len(r.URLs) }

type Deps struct {
	Locator  *images.Locator
	Pool     *images.Pool
	Editor   ports.ImageEditor
	Uploader ports.Uploader
	Log      *logger.Logger
	Tracer   trace.Tracer
	Metrics  *metrics.Metrics
	// Rand drives background selection. Nil means a randomly seeded source.
	Rand *rand.Rand
	Now  func() time.Time

	Count          int
	PromptTemplate string
	// TempDir is the parent of batch working directories. Empty means
	// os.TempDir.
	TempDir string
}

type Service struct {
	locator  *images.Locator
	pool     *images.Pool
	editor   ports.ImageEditor
	uploader ports.Uploader
	log      *logger.Logger
	tracer   trace.Tracer
	metrics  *metrics.Metrics
	now      func() time.Time
	count    int
	prompt   string
	tempDir  string

	mu  sync.Mutex
	rng *rand.Rand
}

func New(d Deps) *Service {
	s := &Service{
		locator:  d.Locator,
		pool:     d.Pool,
		editor:   d.Editor,
		uploader: d.Uploader,
		log:      d.Log,
		tracer:   d.Tracer,
		metrics:  d.Metrics,
		now:      d.Now,
		count:    d.Count,
		prompt:   d.PromptTemplate,
		tempDir:  d.TempDir,
		rng:      d.Rand,
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	s.log = s.log.WithComponent("backgrounds")
	if s.now == nil {
		s.now = time.Now
	}
	if s.count <= 0 {
		s.count = DefaultCount
	}
	if s.prompt == "" {
		s.prompt = DefaultPrompt
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// Generate runs one batch. Individual items may fail; the batch only fails
// when the preconditions are not met or no item succeeds.
func (s *Service) Generate(ctx context.Context, req Request) (res *Result, err error) {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "backgrounds.Generate", trace.WithAttributes(
			attribute.String("team", req.TeamName),
			attribute.Int("count", s.count),
		))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetAttributes(attribute.Int("produced", res.Count()))
			}
			span.End()
		}()
	}

	req.TeamName = strings.TrimSpace(req.TeamName)
	if req.TeamName == "" {
		return nil, errors.ValidationField("team_name", "team_name is required")
	}
	if req.Size == "" {
		req.Size = DefaultSize
	}
	if req.Quality == "" {
		req.Quality = DefaultQuality
	}

	emblem, err := s.locator.Locate(req.TeamName)
	if err != nil {
		return nil, err
	}

	selected, err := s.selectBackgrounds()
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(s.tempDir, "backgrounds-*")
	if err != nil {
		return nil, errors.Wrap(err, "backgrounds", "failed to create working directory")
	}
	defer os.RemoveAll(dir)

	batchID := filepath.Base(dir)
	ctx = logger.ContextWithBatchID(ctx, batchID)
	log := s.log.FromContext(ctx)

	ts := s.now().Unix()
	tag := s.batchTag()
	prompt := strings.ReplaceAll(s.prompt, teamPlaceholder, req.TeamName)
	stem := SanitizeName(req.TeamName)

	log.Info("batch started", "team", req.TeamName, "emblem", emblem.Name, "backgrounds", len(selected), "tag", tag)

	res = &Result{TeamName: req.TeamName, URLs: []string{}}
	for i, bg := range selected {
		idx := i + 1
		item := ItemOutcome{Index: idx, Background: bg.Name}

		item.URL, item.Err = s.process(ctx, itemJob{
			index:      idx,
			background: bg,
			emblem:     emblem,
			prompt:     prompt,
			size:       req.Size,
			quality:    req.Quality,
			dst:        filepath.Join(dir, fmt.Sprintf("bg_%d.png", idx)),
			remoteName: fmt.Sprintf("%s_bg_%d_%d_%s.png", stem, idx, ts, tag),
		})

		if item.Err != nil {
			log.Warn("background skipped", "index", idx, "background", bg.Name, "error", item.Err.Error())
			s.metrics.BatchItem(metrics.OutcomeSkipped)
		} else {
			log.Info("background generated", "index", idx, "background", bg.Name, "url", item.URL)
			s.metrics.BatchItem(metrics.OutcomeSuccess)
			res.URLs = append(res.URLs, item.URL)
		}
		res.Items = append(res.Items, item)
	}

	if len(res.URLs) == 0 {
		return nil, errors.New(errors.CodeInternal, "no background image was generated successfully").
			WithField("team", req.TeamName)
	}

	log.Info("batch finished", "team", req.TeamName, "produced", len(res.URLs), "requested", len(selected))
	return res, nil
}

type itemJob struct {
	index      int
	background images.Ref
	emblem     images.Ref
	prompt     string
	size       string
	quality    string
	dst        string
	remoteName string
}

// process handles one background. The input handles are scoped to the item.
func (s *Service) process(ctx context.Context, job itemJob) (string, error) {
	bg, err := os.Open(job.background.Path)
	if err != nil {
		return "", errors.Wrap(err, "backgrounds.open", "failed to open background")
	}
	defer bg.Close()

	emblem, err := os.Open(job.emblem.Path)
	if err != nil {
		return "", errors.Wrap(err, "backgrounds.open", "failed to open emblem")
	}
	defer emblem.Close()

	out, err := s.editor.Edit(ctx, ports.EditRequest{
		Images: []ports.EditImage{
			{Name: filepath.Base(job.background.Path), Reader: bg},
			{Name: filepath.Base(job.emblem.Path), Reader: emblem},
		},
		Prompt:       job.prompt,
		Size:         job.size,
		Quality:      job.quality,
		OutputFormat: "png",
		Destination:  job.dst,
	})
	if err != nil {
		return "", err
	}

	return s.uploader.Upload(ctx, out, job.remoteName)
}

// selectBackgrounds draws count distinct pool entries uniformly at random.
func (s *Service) selectBackgrounds() ([]images.Ref, error) {
	pool, err := s.pool.Eligible()
	if err != nil {
		return nil, err
	}
	if len(pool) < s.count {
		return nil, errors.Newf(errors.CodeNotFound, "not enough background images: need %d, found %d", s.count, len(pool)).
			WithField("dir", s.pool.Dir())
	}

	s.mu.Lock()
	perm := s.rng.Perm(len(pool))
	s.mu.Unlock()

	selected := make([]images.Ref, s.count)
	for i := range selected {
		selected[i] = pool[perm[i]]
	}
	return selected, nil
}

// batchTag is a random suffix shared by the items of one batch. Uploads
// overwrite, so batches started in the same second, or for team names that
// sanitize to the same stem, must not share object names.
func (s *Service) batchTag() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%08x", s.rng.Uint32())
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SanitizeName turns a team name into a storage friendly stem.
func SanitizeName(name string) string {
	s := unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "team"
	}
	return s
}
