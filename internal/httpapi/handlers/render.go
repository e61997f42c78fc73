package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"teamart/internal/canvas"
	"teamart/internal/httpkit"
	"teamart/internal/pkg/errors"
)

// Root identifies the service.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) error {
	httpkit.WriteJSON(w, http.StatusOK, map[string]string{"message": "Text to Image API"})
	return nil
}

// Render draws text from the query string and answers with a PNG. A canvas
// with a zero dimension has no PNG encoding and answers 204 with no body.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	text, ok := q["text"]
	if !ok {
		return errors.ValidationField("text", "text is required")
	}

	width, err := intParam(q.Get("width"), "width", 400)
	if err != nil {
		return err
	}
	height, err := intParam(q.Get("height"), "height", 200)
	if err != nil {
		return err
	}
	fontSize, err := intParam(q.Get("font_size"), "font_size", 32)
	if err != nil {
		return err
	}

	renderer := h.renderer
	if v := q.Get("layout"); v != "" {
		layout, err := canvas.ParseLayout(v)
		if err != nil {
			return err
		}
		renderer = renderer.WithLayout(layout)
	}

	spec := canvas.RenderSpec{
		Text:            text[0],
		Width:           width,
		Height:          height,
		FontSize:        fontSize,
		TextColor:       strParam(q.Get("text_color"), "#000000"),
		BackgroundColor: strParam(q.Get("background_color"), "#FFFFFF"),
		FontName:        strParam(q.Get("font"), h.defaultFont),
	}

	png, err := renderer.Render(spec)
	if err != nil {
		return err
	}

	if len(png) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}

	httpkit.WriteBytes(w, http.StatusOK, "image/png", png)
	return nil
}

func intParam(raw, name string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.ValidationField(name, fmt.Sprintf("%s must be an integer, got %q", name, raw))
	}
	return n, nil
}

func strParam(raw, def string) string {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	return raw
}
