package aiedit

import (
	openai "github.com/sashabaranov/go-openai"

	"teamart/internal/pkg/errors"
)

// ResultKind tags which arm of Result is populated.
type ResultKind int

const (
	ResultURL ResultKind = iota + 1
	ResultInline
)

func (k ResultKind) String() string {
	switch k {
	case ResultURL:
		return "url"
	case ResultInline:
		return "inline"
	default:
		return "unknown"
	}
}

// Result is the first item of an edit response. Exactly one of URL or Data
// is set, as indicated by Kind.
type Result struct {
	Kind ResultKind
	URL  string
	// Data is base64 encoded image bytes.
	Data string
}

// Classify picks the result arm of the first response item. A URL wins when
// both are present.
func Classify(resp openai.ImageResponse) (Result, error) {
	if len(resp.Data) == 0 {
		return Result{}, errors.New(errors.CodeUnexpectedResponse, "edit api returned no image data")
	}

	item := resp.Data[0]
	switch {
	case item.URL != "":
		return Result{Kind: ResultURL, URL: item.URL}, nil
	case item.B64JSON != "":
		return Result{Kind: ResultInline, Data: item.B64JSON}, nil
	default:
		return Result{}, errors.New(errors.CodeUnexpectedResponse, "edit api response has neither url nor b64_json")
	}
}
