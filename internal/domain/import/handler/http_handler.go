// Package handler exposes the sales pipeline over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/sales-report/internal/domain/import/mapper"
	"github.com/FACorreiaa/sales-report/internal/domain/import/parser"
	"github.com/FACorreiaa/sales-report/internal/domain/import/service"
	"github.com/FACorreiaa/sales-report/pkg/storage"
)

const uploadField = "file"

// Content types of the downloadable artifacts.
const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Options configures the HTTP surface.
type Options struct {
	MaxUploadBytes     int64
	RateLimitPerSecond int // Uploads per second; 0 disables limiting
	RateLimitBurst     int
	AllowedOrigins     []string
}

// SalesHandler serves uploads, summaries and downloads.
type SalesHandler struct {
	svc            *service.Service
	logger         *slog.Logger
	limiter        *rate.Limiter
	maxUploadBytes int64
	allowedOrigins []string
}

// NewSalesHandler creates a new sales handler
func NewSalesHandler(svc *service.Service, logger *slog.Logger, opts Options) *SalesHandler {
	h := &SalesHandler{
		svc:            svc,
		logger:         logger,
		maxUploadBytes: opts.MaxUploadBytes,
		allowedOrigins: opts.AllowedOrigins,
	}
	if opts.RateLimitPerSecond > 0 {
		burst := opts.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitPerSecond), burst)
	}
	return h
}

// Routes builds the router with all middleware applied.
func (h *SalesHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/status", h.Status)
	r.With(h.rateLimit).Post("/procesar", h.Process)
	r.Get("/resumen/{jobID}", h.Summary)
	r.Get("/descargar/csv/{jobID}", h.download(service.ArtifactCSV, contentTypeCSV))
	r.Get("/descargar/reporte/{jobID}", h.download(service.ArtifactReport, contentTypeXLSX))

	origins := h.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"Content-Disposition"},
	}).Handler(r)
}

// Status reports that the service is up.
func (h *SalesHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"servicio": "activo"})
}

// ProcessResponse is returned by a successful upload.
type ProcessResponse struct {
	Estado               string `json:"estado"`
	JobID                string `json:"job_id"`
	FilasProcesadas      int    `json:"filas_procesadas"`
	FilasDescartadas     int    `json:"filas_descartadas"`
	FilasMalformadas     int    `json:"filas_malformadas"`
	Codificacion         string `json:"codificacion"`
	CodificacionRespaldo bool   `json:"codificacion_respaldo"`
	Separador            string `json:"separador,omitempty"`
	Formato              string `json:"formato"`
}

// Process accepts a multipart upload in field "file" and runs the pipeline.
func (h *SalesHandler) Process(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		if r.ContentLength > h.maxUploadBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "el archivo supera el tamaño máximo permitido")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "el archivo supera el tamaño máximo permitido")
			return
		}
		h.logger.Info("invalid upload", slog.Any("error", err))
		writeError(w, http.StatusBadRequest, "se requiere un archivo en el campo \"file\"")
		return
	}
	defer file.Close()

	result, err := h.svc.Process(r.Context(), header.Filename, file)
	if err != nil {
		h.writeProcessError(w, err)
		return
	}

	resp := ProcessResponse{
		Estado:               "ok",
		JobID:                result.JobID.String(),
		FilasProcesadas:      result.Rows,
		FilasDescartadas:     result.Dropped,
		FilasMalformadas:     result.Malformed,
		Codificacion:         result.Encoding.Encoding,
		CodificacionRespaldo: result.Encoding.IsFallback(),
		Formato:              result.Format,
	}
	if result.Delimiter != 0 {
		resp.Separador = string(result.Delimiter)
	}
	writeJSON(w, http.StatusOK, resp)
}

type missingColumnsResponse struct {
	Estado      string              `json:"estado"`
	Error       string              `json:"error"`
	Faltantes   []string            `json:"faltantes"`
	Disponibles []string            `json:"disponibles"`
	Sugerencias map[string][]string `json:"sugerencias,omitempty"`
}

func (h *SalesHandler) writeProcessError(w http.ResponseWriter, err error) {
	var mce *mapper.MissingColumnsError
	var pe *parser.ParseError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &mce):
		resp := missingColumnsResponse{
			Estado:      "error",
			Error:       mce.Error(),
			Faltantes:   make([]string, len(mce.Missing)),
			Disponibles: mce.Available,
		}
		for i, role := range mce.Missing {
			resp.Faltantes[i] = role.Canonical()
		}
		if len(mce.Suggestions) > 0 {
			resp.Sugerencias = make(map[string][]string, len(mce.Suggestions))
			for role, hints := range mce.Suggestions {
				resp.Sugerencias[role.Canonical()] = hints
			}
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.As(err, &pe):
		writeError(w, http.StatusBadRequest, pe.Error())
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "el archivo supera el tamaño máximo permitido")
	default:
		h.logger.Error("failed to process upload", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "error interno al procesar el archivo")
	}
}

// Summary returns the per-region breakdown of a job.
func (h *SalesHandler) Summary(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	summary, err := h.svc.Summary(r.Context(), jobID)
	if err != nil {
		h.writeLookupError(w, jobID, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *SalesHandler) download(artifact service.Artifact, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := parseJobID(w, r)
		if !ok {
			return
		}

		rc, info, err := h.svc.OpenArtifact(r.Context(), jobID, artifact)
		if err != nil {
			h.writeLookupError(w, jobID, err)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		w.Header().Set("Content-Disposition", `attachment; filename="`+info.Name+`"`)
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, rc); err != nil {
			h.logger.Warn("download interrupted",
				slog.String("job_id", jobID.String()),
				slog.String("artifact", string(artifact)),
				slog.Any("error", err),
			)
		}
	}
}

func (h *SalesHandler) writeLookupError(w http.ResponseWriter, jobID uuid.UUID, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "trabajo no encontrado")
		return
	}
	h.logger.Error("failed to load job",
		slog.String("job_id", jobID.String()),
		slog.Any("error", err),
	)
	writeError(w, http.StatusInternalServerError, "error interno")
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "identificador de trabajo inválido")
		return uuid.Nil, false
	}
	return jobID, true
}

func (h *SalesHandler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "demasiadas solicitudes, intente nuevamente")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *SalesHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"estado": "error", "error": msg})
}
