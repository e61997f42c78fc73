package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"teamart/internal/httpkit"
)

// Health reports liveness. With ?deep=true the configured directories and
// the storage provider are checked too.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status": "healthy",
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] != "ok" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := make(map[string]map[string]any)

	if h.locator != nil {
		checks["images_dir"] = checkDir(h.locator.Dir())
	}
	if h.pool != nil {
		checks["backgrounds_dir"] = checkDir(h.pool.Dir())
	}
	if h.fontsDir != "" {
		checks["fonts_dir"] = checkDir(h.fontsDir)
	}
	checks["storage"] = h.checkStorage(ctx)

	return checks
}

func checkDir(dir string) map[string]any {
	result := map[string]any{
		"status": "ok",
		"path":   dir,
	}

	st, err := os.Stat(dir)
	switch {
	case err != nil:
		result["status"] = "error"
		result["error"] = err.Error()
	case !st.IsDir():
		result["status"] = "error"
		result["error"] = "not a directory"
	}
	return result
}

func (h *Handler) checkStorage(ctx context.Context) map[string]any {
	start := time.Now()
	if h.sp == nil {
		return map[string]any{"status": "error", "error": "no storage provider configured"}
	}

	result := map[string]any{
		"status":   "ok",
		"provider": h.sp.Provider(),
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// gdrive.PublicURL changes sharing on the file, so it is not probed.
	if h.sp.Provider() != "gdrive" {
		if _, err := h.sp.PublicURL(checkCtx, "healthcheck.png"); err != nil {
			result["status"] = "error"
			result["error"] = err.Error()
		}
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
