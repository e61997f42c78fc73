package handlers

import (
	"context"
	"net/http"

	"teamart/internal/backgrounds"
	"teamart/internal/canvas"
	"teamart/internal/combine"
	"teamart/internal/images"
	"teamart/internal/pkg/logger"
	"teamart/internal/ports"
)

type Deps struct {
	Log         *logger.Logger
	Renderer    *canvas.Renderer
	DefaultFont string
	Locator     *images.Locator
	Pool        *images.Pool
	Combine     *combine.Service
	Backgrounds *backgrounds.Service
	SP          ports.StorageProvider
	// FontsDir is only reported by the deep health check.
	FontsDir string
	// Base cancels edit work on server shutdown. Nil means never.
	Base context.Context
}

type Handler struct {
	log         *logger.Logger
	renderer    *canvas.Renderer
	defaultFont string
	locator     *images.Locator
	pool        *images.Pool
	combine     *combine.Service
	backgrounds *backgrounds.Service
	sp          ports.StorageProvider
	fontsDir    string
	base        context.Context
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		log:         log.WithComponent("http"),
		renderer:    d.Renderer,
		defaultFont: d.DefaultFont,
		locator:     d.Locator,
		pool:        d.Pool,
		combine:     d.Combine,
		backgrounds: d.Backgrounds,
		sp:          d.SP,
		fontsDir:    d.FontsDir,
		base:        d.Base,
	}
}

// Log returns the handler logger, used by the router to wrap handlers.
func (h *Handler) Log() *logger.Logger { return h.log }

// workContext keeps the request values but not its cancellation: a client
// disconnect does not abort a started edit. Server shutdown still cancels
// through the base context.
func (h *Handler) workContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	if h.base == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(h.base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
