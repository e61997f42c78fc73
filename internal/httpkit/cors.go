package httpkit

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSOptions configures CORS. An origin of "*" allows any origin; with
// credentials enabled the request origin is echoed instead.
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

// Browsers need Content-Disposition exposed to read the combine attachment
// name.
var defaultExposed = []string{"Content-Disposition", "X-Request-ID"}

type cors struct {
	origins     map[string]struct{}
	anyOrigin   bool
	credentials bool

	methods, headers, exposed, maxAge string
}

func newCORS(opt CORSOptions) *cors {
	c := &cors{
		origins:     make(map[string]struct{}),
		credentials: opt.AllowCredentials,
		methods:     joinOr(opt.AllowedMethods, "GET, POST, OPTIONS"),
		headers:     joinOr(opt.AllowedHeaders, "Content-Type, Authorization, Accept"),
		exposed:     joinOr(opt.ExposedHeaders, strings.Join(defaultExposed, ", ")),
		maxAge:      "600",
	}
	if opt.MaxAgeSeconds > 0 {
		c.maxAge = strconv.Itoa(opt.MaxAgeSeconds)
	}
	for _, o := range opt.AllowedOrigins {
		switch o = strings.TrimSpace(o); o {
		case "":
		case "*":
			c.anyOrigin = true
		default:
			c.origins[o] = struct{}{}
		}
	}
	return c
}

func (c *cors) allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if c.anyOrigin {
		return true
	}
	_, ok := c.origins[origin]
	return ok
}

func (c *cors) setHeaders(h http.Header, origin string) {
	if c.anyOrigin && !c.credentials {
		h.Set("Access-Control-Allow-Origin", "*")
	} else {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	}
	h.Set("Access-Control-Allow-Methods", c.methods)
	h.Set("Access-Control-Allow-Headers", c.headers)
	h.Set("Access-Control-Expose-Headers", c.exposed)
	h.Set("Access-Control-Max-Age", c.maxAge)
	if c.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}

// CORS answers preflight requests with 204 and decorates every response to an
// allowed origin. A bare OPTIONS without Access-Control-Request-Method reaches
// the router.
func CORS(opt CORSOptions) func(http.Handler) http.Handler {
	c := newCORS(opt)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); c.allowed(origin) {
				c.setHeaders(w.Header(), origin)
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func joinOr(vals []string, def string) string {
	if len(vals) == 0 {
		return def
	}
	return strings.Join(vals, ", ")
}
