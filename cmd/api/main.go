package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"teamart/internal/adapters/aiedit"
	"teamart/internal/backgrounds"
	"teamart/internal/canvas"
	"teamart/internal/combine"
	"teamart/internal/config"
	"teamart/internal/fonts"
	"teamart/internal/httpapi"
	"teamart/internal/images"
	"teamart/internal/pkg/logger"
	"teamart/internal/pkg/metrics"
	"teamart/internal/pkg/shutdown"
	"teamart/internal/pkg/telemetry"
	"teamart/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "teamart-api",
		AddSource:   cfg.LogSource,
	})
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}

	log.Info("starting teamart API",
		"version", "0.1.0",
		"storage_provider", cfg.Storage.Provider,
		"combine_mode", cfg.CombineMode,
	)

	ctx := context.Background()

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	tel, err := telemetry.New(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.LogFatal("failed to initialize telemetry", err)
	}
	otel.SetTracerProvider(tel.TracerProvider())
	otel.SetTextMapPropagator(propagation.TraceContext{})
	// Steps run last registered first, so spans from the server drain are flushed.
	shutdownMgr.Register("telemetry", tel.Close)
	log.Info("tracing initialized", "exporter", tel.Exporter())

	tracer := tel.Tracer("teamart")
	m := metrics.New()

	// Initialize storage provider
	log.Info("initializing storage provider")
	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	if cfg.AI.APIKey == "" {
		log.Warn("AIML_API_KEY is not set, image edit requests will be rejected upstream")
	}

	editor := aiedit.New(aiedit.Config{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
	},
		aiedit.WithHTTPClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithTracerProvider(tel.TracerProvider())),
		}),
		aiedit.WithLogger(log),
		aiedit.WithTracer(tracer),
		aiedit.WithMetrics(m),
	)
	uploader := storage.NewUploader(sp, log, tracer, m)

	renderer := canvas.New(fonts.NewResolver(cfg.FontsDir), canvas.Options{
		Log:         log,
		Metrics:     m,
		MaxPixels:   cfg.RenderMaxPixels,
		MaxFontSize: cfg.RenderMaxFontSize,
	})
	locator := images.NewLocator(cfg.ImagesDir)
	pool := images.NewPool(cfg.BackgroundsDir)

	mode, err := combine.ParseMode(cfg.CombineMode)
	if err != nil {
		log.LogFatal("invalid combine mode", err)
	}
	combiner := combine.New(combine.Deps{
		Locator:  locator,
		Editor:   editor,
		Uploader: uploader,
		Mode:     mode,
		Log:      log,
		Tracer:   tracer,
	})
	generator := backgrounds.New(backgrounds.Deps{
		Locator:        locator,
		Pool:           pool,
		Editor:         editor,
		Uploader:       uploader,
		Log:            log,
		Tracer:         tracer,
		Metrics:        m,
		Count:          cfg.BackgroundCount,
		PromptTemplate: cfg.BackgroundPrompt,
	})

	// Create HTTP router
	router := httpapi.NewRouter(httpapi.Deps{
		Log:            log,
		Metrics:        m,
		Renderer:       renderer,
		DefaultFont:    cfg.DefaultFont,
		FontsDir:       cfg.FontsDir,
		Locator:        locator,
		Pool:           pool,
		Combine:        combiner,
		Backgrounds:    generator,
		SP:             sp,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		BaseContext:    shutdownMgr.Context(),
		TracerProvider: tel.TracerProvider(),
	})

	// Create HTTP server. Background batches make several sequential edit
	// calls, so the write timeout is generous.
	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return shutdownMgr.Context()
		},
	}

	// Register server shutdown
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	// Start server in goroutine
	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", cfg.HTTPPort,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	// Wait for shutdown signal
	shutdownMgr.Wait()
}
