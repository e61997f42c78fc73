package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"teamart/internal/backgrounds"
	"teamart/internal/combine"
	"teamart/internal/httpkit"
	"teamart/internal/pkg/errors"
)

const maxFormMemory = 8 << 20

// CombineImages blends two stored images through the edit API. Depending on
// the combine mode the answer is the PNG itself or its public URL.
func (h *Handler) CombineImages(w http.ResponseWriter, r *http.Request) error {
	if err := parseForm(r); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "http.combine", "invalid form body")
	}

	req := combine.Request{
		Image1:  r.FormValue("image1_name"),
		Image2:  r.FormValue("image2_name"),
		Prompt:  r.FormValue("prompt"),
		Size:    strParam(r.FormValue("size"), combine.DefaultSize),
		Quality: strParam(r.FormValue("quality"), combine.DefaultQuality),
	}

	ctx, cancel := h.workContext(r)
	defer cancel()

	res, err := h.combine.Combine(ctx, req)
	if err != nil {
		return errors.Wrap(err, "http.combine", "error combining images")
	}
	defer res.Close()

	if h.combine.Mode() == combine.ModeStorage {
		httpkit.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "url": res.URL})
		return nil
	}

	if err := httpkit.ServeAttachment(w, r, res.Path, combine.ResultFilename); err != nil {
		return errors.Wrap(err, "http.combine", "failed to send combined image")
	}
	return nil
}

type generateBackgroundsRequest struct {
	TeamName string `json:"team_name"`
	Size     string `json:"size"`
	Quality  string `json:"quality"`
}

type generateBackgroundsResponse struct {
	Success  bool     `json:"success"`
	TeamName string   `json:"team_name"`
	Count    int      `json:"count"`
	URLs     []string `json:"urls"`
}

// GenerateTeamBackgrounds runs one background batch for a team.
func (h *Handler) GenerateTeamBackgrounds(w http.ResponseWriter, r *http.Request) error {
	var body generateBackgroundsRequest
	if err := httpkit.DecodeJSON(r, &body); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "http.backgrounds", "invalid JSON body")
	}

	ctx, cancel := h.workContext(r)
	defer cancel()

	res, err := h.backgrounds.Generate(ctx, backgrounds.Request{
		TeamName: body.TeamName,
		Size:     strParam(body.Size, backgrounds.DefaultSize),
		Quality:  strParam(body.Quality, backgrounds.DefaultQuality),
	})
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusOK, generateBackgroundsResponse{
		Success:  true,
		TeamName: res.TeamName,
		Count:    res.Count(),
		URLs:     res.URLs,
	})
	return nil
}

// ListImages returns the stored image names.
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) error {
	names, err := h.locator.List(r.Context())
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string][]string{"images": names})
	return nil
}

// ServeFile streams an object from the storage provider. It backs the public
// URLs of the localfs provider.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) error {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if key == "" {
		return errors.NotFound("file", key)
	}

	rc, ct, size, err := h.sp.GetObject(r.Context(), key)
	if err != nil {
		return errors.NotFound("file", key)
	}
	defer rc.Close()

	httpkit.StreamObject(w, rc, ct, size)
	return nil
}

// parseForm accepts both multipart and urlencoded bodies.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxFormMemory)
	if err == http.ErrNotMultipart {
		return r.ParseForm()
	}
	return err
}
