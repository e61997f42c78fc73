// Package errors is the coded error type shared by every layer of the
// service. A code selects the HTTP status; the message chain is what clients
// read in the "detail" field.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

type Code string

const (
	CodeInternal   Code = "INTERNAL_ERROR"
	CodeValidation Code = "VALIDATION_ERROR"
	CodeNotFound   Code = "NOT_FOUND"
	// CodeEditAPIFailure is a non-2xx answer or transport failure of the
	// image edit API, or a failed download of its result.
	CodeEditAPIFailure Code = "EDIT_API_FAILURE"
	// CodeUnexpectedResponse is a 2xx edit answer without usable image data.
	CodeUnexpectedResponse Code = "UNEXPECTED_RESPONSE_SHAPE"
	CodeUploadFailure      Code = "UPLOAD_FAILURE"
	CodeRenderFailure      Code = "RENDER_FAILURE"
)

var statusByCode = map[Code]int{
	CodeValidation: http.StatusBadRequest,
	CodeNotFound:   http.StatusNotFound,
}

// Status maps a code to its HTTP status. Unknown codes are 500.
func (c Code) Status() int {
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error carries a code, the failing operation and optional log fields.
// Errors built by this package record the caller stack.
type Error struct {
	Code    Code
	Message string
	// Op names the failing step, e.g. "backgrounds.item".
	Op     string
	Err    error
	Fields map[string]any

	pcs []uintptr
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op + ": ")
	}
	if e.Code != "" {
		fmt.Fprintf(&b, "[%s] ", e.Code)
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err,
// &Error{Code: CodeNotFound}) works as a code test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithField attaches a log field and returns e.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any, 2)
	}
	e.Fields[key] = value
	return e
}

func (e *Error) HTTPStatus() int { return e.Code.Status() }

// StackTrace formats the recorded stack, one frame per line, skipping the
// runtime. It is empty for errors not built by this package.
func (e *Error) StackTrace() string {
	if len(e.pcs) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.pcs)
	for n := 0; n < 10; {
		f, more := frames.Next()
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
			n++
		}
		if !more {
			break
		}
	}
	return b.String()
}

func New(code Code, message string) *Error {
	return build(code, message, "", nil)
}

func Newf(code Code, format string, args ...any) *Error {
	return build(code, fmt.Sprintf(format, args...), "", nil)
}

// Wrap adds op and message to err. The code and fields of an inner *Error
// carry over; any other error becomes CodeInternal. Wrap(nil, ...) is nil.
func Wrap(err error, op, message string) *Error {
	if err == nil {
		return nil
	}

	w := build(CodeInternal, message, op, err)
	var inner *Error
	if errors.As(err, &inner) {
		w.Code = inner.Code
		w.Fields = inner.Fields
	}
	return w
}

// WrapWithCode is Wrap with an explicit code.
func WrapWithCode(err error, code Code, op, message string) *Error {
	if err == nil {
		return nil
	}
	return build(code, message, op, err)
}

// NotFound reports a missing named resource, e.g. NotFound("image", "shirt")
// reads "image not found: shirt".
func NotFound(resource, id string) *Error {
	return build(CodeNotFound, fmt.Sprintf("%s not found: %s", resource, id), "", nil).
		WithField("resource", resource).
		WithField("id", id)
}

func Validation(message string) *Error {
	return build(CodeValidation, message, "", nil)
}

// ValidationField is Validation tagged with the offending field.
func ValidationField(field, message string) *Error {
	return build(CodeValidation, message, "", nil).WithField("field", field)
}

// GetCode returns the outermost code in err's chain, or CodeInternal.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func GetHTTPStatus(err error) int { return GetCode(err).Status() }

func GetFields(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// Detail joins the messages of err's chain with ": ", leaving out ops, codes
// and stacks. Repeated adjacent messages are collapsed.
func Detail(err error) string {
	var parts []string
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			parts = append(parts, err.Error())
			break
		}
		if e.Message != "" && (len(parts) == 0 || parts[len(parts)-1] != e.Message) {
			parts = append(parts, e.Message)
		}
		err = e.Err
	}
	return strings.Join(parts, ": ")
}

func IsCode(err error, code Code) bool { return GetCode(err) == code }

func IsNotFound(err error) bool { return IsCode(err, CodeNotFound) }

func IsValidation(err error) bool { return IsCode(err, CodeValidation) }

// As is errors.As, re-exported so callers need a single errors import.
func As(err error, target any) bool { return errors.As(err, target) }

// build must be called directly by an exported constructor so the recorded
// stack starts at that constructor's caller.
func build(code Code, message, op string, err error) *Error {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	return &Error{Code: code, Message: message, Op: op, Err: err, pcs: pcs[:n]}
}
