package storage

import (
	"bytes"
	"context"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"teamart/internal/pkg/errors"
	"teamart/internal/pkg/logger"
	"teamart/internal/pkg/metrics"
	"teamart/internal/ports"
)

const pngContentType = "image/png"

// Uploader copies finished local files to a Provider and returns their
// public URL.
type Uploader struct {
	provider Provider
	log      *logger.Logger
	tracer   trace.Tracer
	metrics  *metrics.Metrics
}

var _ ports.Uploader = (*Uploader)(nil)

func NewUploader(provider Provider, log *logger.Logger, tracer trace.Tracer, m *metrics.Metrics) *Uploader {
	if log == nil {
		log = logger.Discard()
	}
	return &Uploader{
		provider: provider,
		log:      log.WithComponent("uploader"),
		tracer:   tracer,
		metrics:  m,
	}
}

// Upload reads localPath fully and stores it as remoteName, replacing any
// object with the same name.
func (u *Uploader) Upload(ctx context.Context, localPath, remoteName string) (url string, err error) {
	if u.tracer != nil {
		var span trace.Span
		ctx, span = u.tracer.Start(ctx, "storage.Upload", trace.WithAttributes(
			attribute.String("provider", u.provider.Provider()),
			attribute.String("object", remoteName),
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
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeFailure
		}
		u.metrics.Upload(u.provider.Provider(), outcome)
	}()

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUploadFailure, "storage.upload", "failed to read file for upload")
	}

	out, err := u.provider.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   remoteName,
		ContentType: pngContentType,
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
		Upsert:      true,
	})
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUploadFailure, "storage.upload", "upload failed").
			WithField("object", remoteName)
	}

	url, err = u.provider.PublicURL(ctx, out.ObjectKey)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUploadFailure, "storage.upload", "failed to resolve public url").
			WithField("object", remoteName)
	}

	u.log.Info("uploaded", "object", remoteName, "bytes", len(data), "provider", u.provider.Provider())
	return url, nil
}
