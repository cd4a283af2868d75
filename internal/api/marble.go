package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcodog/marble-api/internal/marble"
	"github.com/jcodog/marble-api/internal/render"
)

const (
	HeaderSeed     = "X-Marble-Seed"
	HeaderFallback = "X-Marble-Fallback"

	fallbackReason = "rasterization-failed"
	immutableCache = "public, max-age=31536000, immutable"
)

type marbleQuery struct {
	request  marble.Request
	format   render.Format
	explicit bool
}

func (s *Server) parseMarbleQuery(q url.Values) (marbleQuery, error) {
	var (
		out marbleQuery
		err error
	)

	if out.request.Color, err = marble.ParseColor(q.Get("color")); err != nil {
		return out, err
	}
	if out.request.Size, err = marble.ParseSize(q.Get("size")); err != nil {
		return out, err
	}
	if out.request.Resolution, err = marble.ParseResolution(q.Get("resolution")); err != nil {
		return out, err
	}
	if out.format, err = render.ParseFormat(q.Get("type")); err != nil {
		return out, err
	}

	if raw := strings.TrimSpace(q.Get("sharp")); raw != "" {
		if out.request.Sharp, err = strconv.ParseBool(raw); err != nil {
			return out, fmt.Errorf("invalid sharp value %q", raw)
		}
	}

	out.request.Username = q.Get("username")
	out.request.Time = s.now()
	if raw := strings.TrimSpace(q.Get("datetime")); raw != "" {
		if out.request.Time, err = marble.ParseDatetime(raw); err != nil {
			return out, err
		}
		out.explicit = true
	}
	return out, nil
}

func (s *Server) handleMarble(w http.ResponseWriter, r *http.Request) {
	query, err := s.parseMarbleQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.renderer.Render(r.Context(), query.request, query.format)
	if err != nil {
		s.logger.Warn("render aborted", "err", err)
		writeError(w, http.StatusServiceUnavailable, "render aborted")
		return
	}

	seed := fmt.Sprintf("%08x", result.Seed)
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("marble.seed", seed),
		attribute.String("marble.format", string(result.Format)),
		attribute.Bool("marble.fallback", result.Fallback),
	)

	h := w.Header()
	h.Set("Content-Type", result.ContentType)
	h.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", result.Filename))
	h.Set("Content-Length", strconv.Itoa(len(result.Body)))
	h.Set(HeaderSeed, seed)
	if result.Fallback {
		h.Set(HeaderFallback, fallbackReason)
	}
	// without an explicit datetime the seed depends on the clock
	if query.explicit {
		h.Set("Cache-Control", immutableCache)
	} else {
		h.Set("Cache-Control", "no-store")
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Body)
}

func (s *Server) handlePalettes(w http.ResponseWriter, _ *http.Request) {
	swatches, err := marble.Swatches()
	if err != nil {
		s.logger.Error("build swatches failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list palettes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default":  marble.DefaultColor,
		"palettes": swatches,
	})
}
