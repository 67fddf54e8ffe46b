package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/cutout/internal/domain"
	"github.com/dunamismax/cutout/internal/removal"
)

const (
	defaultMaxUploadBytes = 32 << 20
	multipartMemory       = 8 << 20
)

//go:embed static
var staticFiles embed.FS

type Remover interface {
	Remove(ctx context.Context, data []byte, params domain.Params) ([]byte, error)
}

type Options struct {
	MaxUploadBytes int64
	// Registry receives the HTTP metrics and is served on /metrics. A fresh
	// registry is created when nil.
	Registry *prometheus.Registry
}

type Server struct {
	logger         zerolog.Logger
	remover        Remover
	maxUploadBytes int64
	metrics        *metrics
	tracer         trace.Tracer
	mux            *http.ServeMux
}

func NewServer(logger zerolog.Logger, remover Remover, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	s := &Server{
		logger:         logger,
		remover:        remover,
		maxUploadBytes: opts.MaxUploadBytes,
		metrics:        newMetrics(opts.Registry),
		tracer:         otel.Tracer("cutout/api"),
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withTracing(s.metrics.withHTTPMetrics(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/remove", s.handleRemove)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	page, err := fs.ReadFile(staticFiles, "static/index.html")
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "index page unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	logger := s.loggerFrom(r)

	params, err := parseParams(r.URL.Query())
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	data, err := s.readUpload(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	s.metrics.observeUpload(len(data))
	logger.Debug().Int("bytes", len(data)).Str("model", params.Model).Msg("upload accepted")

	out, err := s.remover.Remove(r.Context(), data, params)
	if err != nil {
		if removal.KindOf(err) != 0 {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error().Err(err).Msg("remove background")
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		logger.Debug().Err(err).Msg("write png response")
	}
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("expected multipart upload with a file field: %w", err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing file field: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read uploaded file: %w", err)
	}
	return data, nil
}

// parseParams reads removal parameters from the query string, falling back
// to defaults for absent keys, and rejects out-of-range values.
func parseParams(q url.Values) (domain.Params, error) {
	params := domain.DefaultParams()

	if q.Has("model") {
		params.Model = strings.TrimSpace(q.Get("model"))
	}
	if q.Has("alpha_matting") {
		v, err := parseBool(q.Get("alpha_matting"))
		if err != nil {
			return domain.Params{}, fmt.Errorf("alpha_matting: %w", err)
		}
		params.AlphaMatting = v
	}

	ints := []struct {
		key  string
		dest *int
	}{
		{"alpha_matting_foreground_threshold", &params.ForegroundThreshold},
		{"alpha_matting_background_threshold", &params.BackgroundThreshold},
		{"alpha_matting_erode_size", &params.ErodeSize},
	}
	for _, field := range ints {
		if !q.Has(field.key) {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(q.Get(field.key)))
		if err != nil {
			return domain.Params{}, fmt.Errorf("%s: value is not a valid integer", field.key)
		}
		*field.dest = v
	}

	if err := params.Validate(); err != nil {
		return domain.Params{}, err
	}
	return params, nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("value %q is not a valid boolean", raw)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
