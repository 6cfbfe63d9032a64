// Package service runs the sales cleaning pipeline for uploaded files.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/sales-report/internal/domain/import/charset"
	"github.com/FACorreiaa/sales-report/internal/domain/import/mapper"
	"github.com/FACorreiaa/sales-report/internal/domain/import/parser"
	"github.com/FACorreiaa/sales-report/internal/domain/import/sniffer"
	"github.com/FACorreiaa/sales-report/internal/domain/report"
	"github.com/FACorreiaa/sales-report/pkg/metrics"
	"github.com/FACorreiaa/sales-report/pkg/storage"
)

// File names inside a job directory.
const (
	OriginalFile = "original.csv"
	DecodedFile  = "_upload_utf8.csv"
	CleanFile    = "ventas_limpio.csv"
	ReportFile   = "reporte_ventas.xlsx"
)

// Artifact names a downloadable job output.
type Artifact string

const (
	ArtifactCSV    Artifact = "csv"
	ArtifactReport Artifact = "reporte"
)

var ErrUnknownArtifact = errors.New("unknown artifact")

// Source formats of an upload.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const tracerName = "github.com/FACorreiaa/sales-report/internal/domain/import/service"

// CleanResult describes one cleaning run.
type CleanResult struct {
	JobID       uuid.UUID
	Rows        int // Rows in the persisted clean table
	Dropped     int // Rows removed by filtering
	DropReasons map[parser.DropReason]int
	Malformed   int // Ragged rows skipped while parsing
	Format      string
	Encoding    charset.Resolution
	Delimiter   rune
	Columns     mapper.ColumnRoleMap
}

// ProcessResult is a cleaning run plus the report built from it.
type ProcessResult struct {
	*CleanResult
	Summary report.Summary
}

// Options configures a Service.
type Options struct {
	Charset        charset.Options
	ReportTitle    string
	ReportCurrency string
}

// Service orchestrates decoding, parsing, cleaning and reporting for jobs
// kept in storage. Every job works in its own directory, so concurrent
// uploads never share files.
type Service struct {
	storage  storage.Storage
	resolver *charset.Resolver
	metrics  *metrics.Metrics // Optional: nil records nothing
	tracer   trace.Tracer
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
}

// NewService creates a new cleaning service
func NewService(store storage.Storage, logger *slog.Logger, opts Options) *Service {
	return &Service{
		storage:  store,
		resolver: charset.NewResolver(opts.Charset),
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// WithMetrics adds Prometheus instrumentation to the service
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// Process stores an upload under a new job, cleans it and renders the report.
// A job that fails is removed; no partial output is left behind.
func (s *Service) Process(ctx context.Context, sourceName string, r io.Reader) (*ProcessResult, error) {
	ctx, span := s.tracer.Start(ctx, "sales.process")
	defer span.End()

	jobID := uuid.New()
	span.SetAttributes(attribute.String("job.id", jobID.String()))

	if _, err := s.storage.CreateJob(ctx, jobID, sourceName); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	result, err := s.process(ctx, jobID, sourceName, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if delErr := s.storage.DeleteJob(context.WithoutCancel(ctx), jobID); delErr != nil {
			s.logger.Warn("failed to remove failed job",
				slog.String("job_id", jobID.String()),
				slog.Any("error", delErr),
			)
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) process(ctx context.Context, jobID uuid.UUID, sourceName string, r io.Reader) (*ProcessResult, error) {
	if _, err := s.storage.Put(ctx, jobID, OriginalFile, r); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	cleaned, err := s.Clean(ctx, jobID)
	if err != nil {
		return nil, err
	}

	summary, err := s.writeReport(ctx, jobID, sourceName)
	if err != nil {
		return nil, err
	}

	return &ProcessResult{CleanResult: cleaned, Summary: *summary}, nil
}

// Clean reads the job's original upload and persists its clean table.
// Missing columns and unusable input are returned as *mapper.MissingColumnsError
// and *parser.ParseError; row level problems only increase the drop count.
func (s *Service) Clean(ctx context.Context, jobID uuid.UUID) (result *CleanResult, err error) {
	ctx, span := s.tracer.Start(ctx, "sales.clean", trace.WithAttributes(attribute.String("job.id", jobID.String())))
	start := time.Now()
	defer func() {
		s.metrics.ObserveRun(outcome(err))
		s.metrics.ObserveStage("total", time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	raw, err := s.readAll(ctx, jobID, OriginalFile)
	if err != nil {
		return nil, err
	}

	result = &CleanResult{JobID: jobID}

	var table *parser.RawTable
	if parser.IsWorkbook(raw) {
		table, err = s.parseWorkbook(ctx, raw, result)
	} else {
		table, err = s.parseText(ctx, jobID, raw, result)
	}
	if err != nil {
		return nil, err
	}
	result.Malformed = table.Malformed
	result.Delimiter = table.Delimiter

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	roles, err := mapper.Map(table.Header)
	if err != nil {
		s.logger.Info("upload is missing required columns",
			slog.String("job_id", jobID.String()),
			slog.Any("error", err),
		)
		return nil, err
	}
	result.Columns = *roles

	done := s.stage(ctx, "filter")
	filtered := parser.Clean(table, roles)
	done()

	result.Rows = len(filtered.Table)
	result.Dropped = filtered.Dropped
	result.DropReasons = filtered.Reasons

	if err := s.persist(ctx, jobID, filtered.Table); err != nil {
		return nil, err
	}

	reasons := make(map[string]int, len(filtered.Reasons))
	for reason, n := range filtered.Reasons {
		reasons[string(reason)] = n
	}
	s.metrics.ObserveRows(result.Rows, result.Malformed, reasons)

	span.SetAttributes(
		attribute.Int("rows.clean", result.Rows),
		attribute.Int("rows.dropped", result.Dropped),
		attribute.Int("rows.malformed", result.Malformed),
	)
	s.logger.Info("sales file cleaned",
		slog.String("job_id", jobID.String()),
		slog.String("format", result.Format),
		slog.String("encoding", result.Encoding.Encoding),
		slog.String("delimiter", string(result.Delimiter)),
		slog.Int("rows", result.Rows),
		slog.Int("dropped", result.Dropped),
		slog.Int("malformed", result.Malformed),
	)

	return result, nil
}

// parseText decodes raw to UTF-8 through a temporary job file, then sniffs
// the delimiter and parses it. The temporary file is always removed.
func (s *Service) parseText(ctx context.Context, jobID uuid.UUID, raw []byte, result *CleanResult) (*parser.RawTable, error) {
	result.Format = FormatCSV

	done := s.stage(ctx, "decode")
	res := s.resolver.Resolve(raw)
	decoded, err := s.resolver.Decode(raw, res)
	done()
	if err != nil {
		return nil, fmt.Errorf("failed to decode upload: %w", err)
	}
	result.Encoding = res

	s.metrics.ObserveEncoding(res.Encoding, res.Kind.String(), res.IsFallback())
	if res.IsFallback() {
		s.logger.Warn("encoding detection fell back",
			slog.String("job_id", jobID.String()),
			slog.String("encoding", res.Encoding),
			slog.Float64("confidence", res.Confidence),
			slog.String("reason", res.Reason),
		)
	}

	if _, err := s.storage.Put(ctx, jobID, DecodedFile, bytes.NewReader(decoded)); err != nil {
		return nil, fmt.Errorf("failed to store decoded upload: %w", err)
	}
	defer func() {
		if err := s.storage.Delete(context.WithoutCancel(ctx), jobID, DecodedFile); err != nil {
			s.logger.Warn("failed to remove decoded upload",
				slog.String("job_id", jobID.String()),
				slog.Any("error", err),
			)
		}
	}()

	text, err := s.readAll(ctx, jobID, DecodedFile)
	if err != nil {
		return nil, err
	}

	done = s.stage(ctx, "parse")
	defer done()

	delimiter := sniffer.Detect(string(text))
	table, err := parser.ParseWithFallback(text, delimiter)
	if err != nil {
		return nil, err
	}
	if table.Delimiter != delimiter {
		s.logger.Debug("sniffed delimiter produced a single column, used alternate",
			slog.String("job_id", jobID.String()),
			slog.String("sniffed", string(delimiter)),
			slog.String("used", string(table.Delimiter)),
		)
	}
	return table, nil
}

func (s *Service) parseWorkbook(ctx context.Context, raw []byte, result *CleanResult) (*parser.RawTable, error) {
	result.Format = FormatXLSX
	result.Encoding = charset.Resolution{
		Kind:       charset.KindResolved,
		Encoding:   charset.UTF8,
		Confidence: 1,
		Reason:     "xlsx workbook",
	}

	done := s.stage(ctx, "parse")
	defer done()
	return parser.ParseWorkbook(bytes.NewReader(raw))
}

// persist writes the clean table in one atomic storage write.
func (s *Service) persist(ctx context.Context, jobID uuid.UUID, table parser.CleanTable) error {
	done := s.stage(ctx, "persist")
	defer done()

	var buf bytes.Buffer
	if err := parser.WriteCleanTable(&buf, table); err != nil {
		return err
	}
	if _, err := s.storage.Put(ctx, jobID, CleanFile, &buf); err != nil {
		return fmt.Errorf("failed to store clean table: %w", err)
	}
	return nil
}

func (s *Service) writeReport(ctx context.Context, jobID uuid.UUID, sourceName string) (*report.Summary, error) {
	summary, err := s.Summary(ctx, jobID)
	if err != nil {
		return nil, err
	}

	done := s.stage(ctx, "report")
	defer done()

	var buf bytes.Buffer
	err = report.WriteWorkbook(&buf, *summary, report.WorkbookOptions{
		Title:       s.opts.ReportTitle,
		Currency:    s.opts.ReportCurrency,
		SourceName:  sourceName,
		GeneratedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	if _, err := s.storage.Put(ctx, jobID, ReportFile, &buf); err != nil {
		return nil, fmt.Errorf("failed to store report: %w", err)
	}
	return summary, nil
}

// Summary aggregates the persisted clean table of a job.
func (s *Service) Summary(ctx context.Context, jobID uuid.UUID) (*report.Summary, error) {
	rc, _, err := s.storage.Open(ctx, jobID, CleanFile)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	summary, err := report.AggregateFile(rc)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// OpenArtifact opens a downloadable output of a job.
func (s *Service) OpenArtifact(ctx context.Context, jobID uuid.UUID, artifact Artifact) (io.ReadCloser, *storage.FileInfo, error) {
	var name string
	switch artifact {
	case ArtifactCSV:
		name = CleanFile
	case ArtifactReport:
		name = ReportFile
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownArtifact, artifact)
	}
	return s.storage.Open(ctx, jobID, name)
}

func (s *Service) readAll(ctx context.Context, jobID uuid.UUID, name string) ([]byte, error) {
	rc, _, err := s.storage.Open(ctx, jobID, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// stage opens a span for one pipeline stage and returns the func that ends it.
func (s *Service) stage(ctx context.Context, name string) func() {
	start := time.Now()
	_, span := s.tracer.Start(ctx, "sales."+name)
	return func() {
		s.metrics.ObserveStage(name, time.Since(start))
		span.End()
	}
}

func outcome(err error) string {
	var pe *parser.ParseError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, mapper.ErrMissingColumns):
		return metrics.OutcomeMissingColumns
	case errors.As(err, &pe):
		return metrics.OutcomeParseError
	default:
		return metrics.OutcomeError
	}
}
