// Package aiedit talks to an OpenAI compatible image edit endpoint and
// normalizes its answer into a local file.
package aiedit

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"teamart/internal/pkg/errors"
	"teamart/internal/pkg/logger"
	"teamart/internal/pkg/metrics"
	"teamart/internal/ports"
)

const (
	editPath      = "/images/edits"
	defaultFormat = "png"
	chunkSize     = 8 * 1024
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	log     *logger.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

var _ ports.ImageEditor = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }
func WithLogger(l *logger.Logger) Option    { return func(cl *Client) { cl.log = l } }
func WithTracer(t trace.Tracer) Option      { return func(cl *Client) { cl.tracer = t } }
func WithMetrics(m *metrics.Metrics) Option { return func(cl *Client) { cl.metrics = m } }

func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		// No client timeout: the edit call is bounded by the request context.
		http: &http.Client{},
		log:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithComponent("aiedit")
	return c
}

// Edit sends every image in req.Images with the prompt as one edit call and
// writes the produced image to req.Destination.
func (c *Client) Edit(ctx context.Context, req ports.EditRequest) (path string, err error) {
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, "aiedit.Edit", trace.WithAttributes(
			attribute.Int("images", len(req.Images)),
			attribute.String("size", req.Size),
		))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}()
	}

	defer func() {
		if err != nil {
			c.metrics.Edit(metrics.OutcomeFailure)
		} else {
			c.metrics.Edit(metrics.OutcomeSuccess)
		}
	}()

	if len(req.Images) == 0 {
		return "", errors.Validation("at least one image is required")
	}
	if req.Destination == "" {
		return "", errors.Validation("destination is required")
	}

	res, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(req.Destination), 0o755); err != nil {
		return "", errors.Wrap(err, "aiedit.edit", "failed to create destination directory")
	}

	switch res.Kind {
	case ResultURL:
		err = c.download(ctx, res.URL, req.Destination)
	case ResultInline:
		err = writeInline(res.Data, req.Destination)
	}
	if err != nil {
		return "", err
	}

	c.log.Debug("edit stored", "kind", res.Kind.String(), "path", req.Destination)
	return req.Destination, nil
}

func (c *Client) send(ctx context.Context, req ports.EditRequest) (Result, error) {
	body, contentType, err := c.encode(req)
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+editPath, body)
	if err != nil {
		return Result{}, errors.WrapWithCode(err, errors.CodeEditAPIFailure, "aiedit.send", "failed to build edit request")
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, errors.WrapWithCode(err, errors.CodeEditAPIFailure, "aiedit.send", "edit api request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, errors.WrapWithCode(err, errors.CodeEditAPIFailure, "aiedit.send", "failed to read edit api response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, apiError(resp.StatusCode, raw)
	}

	var out openai.ImageResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, errors.WrapWithCode(err, errors.CodeEditAPIFailure, "aiedit.send", "edit api returned malformed json")
	}
	return Classify(out)
}

// encode builds the multipart body. The image parts share the image[] field
// name and keep the caller's order.
func (c *Client) encode(req ports.EditRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	format := req.OutputFormat
	if format == "" {
		format = defaultFormat
	}

	fields := [][2]string{
		{"model", c.model},
		{"prompt", req.Prompt},
		{"size", req.Size},
		{"quality", req.Quality},
		{"output_format", format},
		{"background", "auto"},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", errors.WrapWithCode(err, errors.CodeEditAPIFailure, "aiedit.encode", "failed to encode form")
		}
	}

	for i, img := range req.Images {
		if img.Reader == nil {
			return nil, "", errors.Validation(fmt.Sprintf("image %d has no data", i+1))
		}
		data, err := io.ReadAll(img.Reader)
		if err != nil {
			return nil, "", errors.WrapWithCode(err, errors.CodeEditAPIFailure, "aiedit.encode", "failed to read input image")
		}

		name := img.Name
		if name == "" {
			name = fmt.Sprintf("image%d.png", i+1)
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image[]"; filename="%s"`, escapeQuotes(filepath.Base(name))))
		h.Set("Content-Type", contentTypeFor(name, data))

		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", errors.WrapWithCode(err, errors.CodeEditAPIFailure, "aiedit.encode", "failed to encode image part")
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", errors.WrapWithCode(err, errors.CodeEditAPIFailure, "aiedit.encode", "failed to encode image part")
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", errors.WrapWithCode(err, errors.CodeEditAPIFailure, "aiedit.encode", "failed to encode form")
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeEditAPIFailure, "aiedit.download", "invalid result url")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeEditAPIFailure, "aiedit.download", "failed to download edited image")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Newf(errors.CodeEditAPIFailure, "failed to download edited image: status %d", resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "aiedit.download", "failed to create destination file")
	}
	defer f.Close()

	if _, err := io.CopyBuffer(f, resp.Body, make([]byte, chunkSize)); err != nil {
		return errors.WrapWithCode(err, errors.CodeEditAPIFailure, "aiedit.download", "failed to download edited image")
	}
	return f.Close()
}

func writeInline(b64, dst string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnexpectedResponse, "aiedit.inline", "edit api returned invalid base64 image data")
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return errors.Wrap(err, "aiedit.inline", "failed to write edited image")
	}
	return nil
}

func apiError(status int, raw []byte) error {
	msg := strings.TrimSpace(string(raw))

	var er openai.ErrorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error != nil && er.Error.Message != "" {
		msg = er.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	return errors.Newf(errors.CodeEditAPIFailure, "edit api request failed: status %d: %s", status, msg).
		WithField("status", status)
}

func contentTypeFor(name string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
