package ports

import (
	"context"
	"io"
)

// EditImage is one input image. Name is used for the multipart filename and
// content type detection.
type EditImage struct {
	Name   string
	Reader io.Reader
}

// EditRequest is consumed by exactly one edit call. It is not retried.
type EditRequest struct {
	Images       []EditImage
	Prompt       string
	Size         string
	Quality      string
	OutputFormat string
	// Destination is the local file the result is written to.
	Destination string
}

// ImageEditor sends images and a prompt to an image editing model and
// stores the produced image at req.Destination, returning that path.
type ImageEditor interface {
	Edit(ctx context.Context, req EditRequest) (string, error)
}
