// Package config loads service configuration from the environment. A .env
// file in the working directory is read first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Storage provider names.
const (
	ProviderLocalFS  = "localfs"
	ProviderGDrive   = "gdrive"
	ProviderSupabase = "supabase"
)

// Trace exporters.
const (
	TracesNone   = "none"
	TracesOTLP   = "otlp"
	TracesStdout = "stdout"
)

// Combine output modes.
const (
	CombineInline  = "inline"
	CombineStorage = "storage"
)

// DefaultBackgroundPrompt asks the edit model to recolor a background with
// the team palette and blend the emblem over it.
const DefaultBackgroundPrompt = "make a version of this background using the colors of the {team} emblem, and place the emblem on top blended at 50% opacity"

type Config struct {
	HTTPPort  string
	LogLevel  string
	LogFormat string
	LogSource bool

	FontsDir       string
	DefaultFont    string
	ImagesDir      string
	BackgroundsDir string

	RenderMaxPixels   int
	RenderMaxFontSize int

	BackgroundCount  int
	BackgroundPrompt string
	CombineMode      string

	CORSAllowedOrigins []string

	AI        AI
	Storage   Storage
	Telemetry Telemetry
}

// Telemetry configures tracing.
type Telemetry struct {
	ServiceName string
	// Exporter is one of TracesNone, TracesOTLP or TracesStdout.
	Exporter string
	// Endpoint is the OTLP/HTTP collector URL.
	Endpoint    string
	SampleRatio float64
}

// AI configures the image edit API.
type AI struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Storage configures the upload target. Only the block matching Provider
// is used.
type Storage struct {
	Provider string

	LocalRoot     string
	PublicBaseURL string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	GDriveClientID     string
	GDriveClientSecret string
	GDriveRefreshToken string
	GDriveFolderID     string
}

// Load reads .env (if any) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	port := Env("HTTP_PORT", "8000")

	count, err := IntEnv("BACKGROUND_COUNT", 5)
	if err != nil {
		return Config{}, err
	}

	maxPixels, err := IntEnv("RENDER_MAX_PIXELS", 4096*4096)
	if err != nil {
		return Config{}, err
	}
	maxFontSize, err := IntEnv("RENDER_MAX_FONT_SIZE", 1024)
	if err != nil {
		return Config{}, err
	}

	ratio, err := FloatEnv("OTEL_TRACES_SAMPLER_ARG", 1)
	if err != nil {
		return Config{}, err
	}
	endpoint := Env("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	exporter := TracesNone
	if endpoint != "" {
		exporter = TracesOTLP
	}

	cfg := Config{
		HTTPPort:  port,
		LogLevel:  Env("LOG_LEVEL", "info"),
		LogFormat: Env("LOG_FORMAT", "json"),
		LogSource: BoolEnv("LOG_SOURCE", false),

		FontsDir:       Env("FONTS_DIR", "fonts"),
		DefaultFont:    Env("DEFAULT_FONT", "DejaVuSans.ttf"),
		ImagesDir:      Env("IMAGES_DIR", "stored_images"),
		BackgroundsDir: Env("BACKGROUNDS_DIR", "bgs"),

		RenderMaxPixels:   maxPixels,
		RenderMaxFontSize: maxFontSize,

		BackgroundCount:  count,
		BackgroundPrompt: Env("BACKGROUND_PROMPT", DefaultBackgroundPrompt),
		CombineMode:      strings.ToLower(Env("COMBINE_MODE", CombineInline)),

		CORSAllowedOrigins: CSVEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),

		AI: AI{
			BaseURL: strings.TrimRight(Env("AIML_BASE_URL", "https://api.aimlapi.com/v1"), "/"),
			APIKey:  Env("AIML_API_KEY", ""),
			Model:   Env("AIML_MODEL", "openai/gpt-image-1"),
		},

		Storage: Storage{
			Provider:      strings.ToLower(Env("STORAGE_PROVIDER", ProviderLocalFS)),
			LocalRoot:     Env("STORAGE_LOCAL_ROOT", "uploads"),
			PublicBaseURL: strings.TrimRight(Env("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),

			SupabaseURL:    strings.TrimRight(Env("SUPABASE_URL", ""), "/"),
			SupabaseKey:    Env("SUPABASE_ANON_KEY", ""),
			SupabaseBucket: Env("SUPABASE_BUCKET", "fotos"),

			GDriveClientID:     Env("GDRIVE_CLIENT_ID", ""),
			GDriveClientSecret: Env("GDRIVE_CLIENT_SECRET", ""),
			GDriveRefreshToken: Env("GDRIVE_REFRESH_TOKEN", ""),
			GDriveFolderID:     Env("GDRIVE_FOLDER_ID", ""),
		},

		Telemetry: Telemetry{
			ServiceName: Env("OTEL_SERVICE_NAME", "teamart-api"),
			Exporter:    strings.ToLower(Env("OTEL_TRACES_EXPORTER", exporter)),
			Endpoint:    endpoint,
			SampleRatio: ratio,
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks enum values and the credentials of the selected provider.
func (c Config) Validate() error {
	if c.BackgroundCount <= 0 {
		return fmt.Errorf("BACKGROUND_COUNT must be positive, got %d", c.BackgroundCount)
	}
	if c.RenderMaxPixels <= 0 || c.RenderMaxFontSize <= 0 {
		return fmt.Errorf("RENDER_MAX_PIXELS and RENDER_MAX_FONT_SIZE must be positive")
	}
	if !strings.Contains(c.BackgroundPrompt, "{team}") {
		return fmt.Errorf("BACKGROUND_PROMPT must contain the {team} placeholder")
	}

	switch c.CombineMode {
	case CombineInline, CombineStorage:
	default:
		return fmt.Errorf("unknown COMBINE_MODE: %s", c.CombineMode)
	}

	t := c.Telemetry
	switch t.Exporter {
	case TracesNone, TracesStdout:
	case TracesOTLP:
		if t.Endpoint == "" {
			return fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("unknown OTEL_TRACES_EXPORTER: %s", t.Exporter)
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLER_ARG must be within [0, 1], got %v", t.SampleRatio)
	}

	s := c.Storage
	switch s.Provider {
	case ProviderLocalFS:
		if s.LocalRoot == "" {
			return fmt.Errorf("STORAGE_LOCAL_ROOT is required for localfs")
		}
	case ProviderSupabase:
		if s.SupabaseURL == "" || s.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY are required for supabase")
		}
	case ProviderGDrive:
		if s.GDriveClientID == "" || s.GDriveClientSecret == "" || s.GDriveRefreshToken == "" {
			return fmt.Errorf("GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN are required for gdrive")
		}
	default:
		return fmt.Errorf("unknown storage provider: %s", s.Provider)
	}

	return nil
}

// Env returns the trimmed value of k, or def when unset or blank.
func Env(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

// BoolEnv parses k as a boolean, falling back to def.
func BoolEnv(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// FloatEnv parses k as a float, falling back to def when unset.
func FloatEnv(k string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return f, nil
}

// IntEnv parses k as an integer, falling back to def when unset.
func IntEnv(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

// CSVEnv splits a comma separated value, dropping blanks.
func CSVEnv(k string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
