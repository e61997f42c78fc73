package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"teamart/internal/backgrounds"
	"teamart/internal/canvas"
	"teamart/internal/combine"
	"teamart/internal/httpapi/handlers"
	"teamart/internal/httpkit"
	"teamart/internal/images"
	"teamart/internal/pkg/errors"
	"teamart/internal/pkg/logger"
	"teamart/internal/pkg/metrics"
	"teamart/internal/pkg/middleware"
	"teamart/internal/ports"
)

type Deps struct {
	Log         *logger.Logger
	Metrics     *metrics.Metrics
	Renderer    *canvas.Renderer
	DefaultFont string
	FontsDir    string
	Locator     *images.Locator
	Pool        *images.Pool
	Combine     *combine.Service
	Backgrounds *backgrounds.Service
	SP          ports.StorageProvider

	AllowedOrigins []string
	// BaseContext is canceled on server shutdown and aborts in-flight edits.
	BaseContext context.Context
	// TracerProvider, when set, opens a server span per request. Component
	// spans started from the request context nest under it.
	TracerProvider trace.TracerProvider
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}

	r := chi.NewRouter()

	if d.TracerProvider != nil {
		r.Use(otelhttp.NewMiddleware("teamart.http", otelhttp.WithTracerProvider(d.TracerProvider)))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))
	r.Use(d.Metrics.Middleware)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Accept"},
		AllowCredentials: false,
		MaxAgeSeconds:    600,
	}))

	h := handlers.New(handlers.Deps{
		Log:         log,
		Renderer:    d.Renderer,
		DefaultFont: d.DefaultFont,
		FontsDir:    d.FontsDir,
		Locator:     d.Locator,
		Pool:        d.Pool,
		Combine:     d.Combine,
		Backgrounds: d.Backgrounds,
		SP:          d.SP,
		Base:        d.BaseContext,
	})
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(h.Log(), fn)
	}

	r.Get("/", wrap(h.Root))
	r.Get("/health", h.Health)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	// ---- RENDER ----
	r.Get("/render", wrap(h.Render))

	// ---- IMAGES ----
	r.Get("/list-images", wrap(h.ListImages))
	r.Post("/combine-images", wrap(h.CombineImages))
	r.Post("/generate-team-backgrounds", wrap(h.GenerateTeamBackgrounds))

	// ---- FILES ----
	r.Get("/files/*", wrap(h.ServeFile))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, errors.CodeNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"detail":"Method Not Allowed"}` + "\n"))
	})

	return r
}
