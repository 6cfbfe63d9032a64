package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/sales-report/internal/domain/import/charset"
	"github.com/FACorreiaa/sales-report/internal/domain/import/mapper"
	"github.com/FACorreiaa/sales-report/internal/domain/import/parser"
	"github.com/FACorreiaa/sales-report/pkg/metrics"
	"github.com/FACorreiaa/sales-report/pkg/storage"
)

func newTestService(t *testing.T) (*Service, storage.Storage) {
	t.Helper()
	return newTestServiceWithOptions(t, Options{})
}

func newTestServiceWithOptions(t *testing.T, opts Options) (*Service, storage.Storage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, logger, opts).WithMetrics(metrics.New())
	return svc, store
}

func readArtifact(t *testing.T, store storage.Storage, jobID uuid.UUID, name string) string {
	t.Helper()
	rc, _, err := store.Open(context.Background(), jobID, name)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestProcess_CleansAliasedHeaders(t *testing.T) {
	svc, store := newTestService(t)

	input := "Nombre;Zona;Importe\nAna;Norte;1.200,50\nBob;;5\n"
	res, err := svc.Process(context.Background(), "ventas.csv", strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 1, res.DropReasons[parser.DropEmptyRegion])
	assert.Equal(t, ';', res.Delimiter)
	assert.Equal(t, FormatCSV, res.Format)
	assert.Equal(t, "Nombre", res.Columns.Customer.Name)
	assert.Equal(t, "Zona", res.Columns.Region.Name)
	assert.Equal(t, "Importe", res.Columns.Amount.Name)

	clean := readArtifact(t, store, res.JobID, CleanFile)
	assert.Equal(t, "\ufeffcliente;region;monto\nAna;Norte;1200.5\n", clean)

	require.Len(t, res.Summary.Regions, 1)
	assert.Equal(t, "Norte", res.Summary.Regions[0].Region)
	assert.Equal(t, 1, res.Summary.Regions[0].UniqueCustomers)
}

func TestProcess_CommaDelimited(t *testing.T) {
	svc, _ := newTestService(t)

	input := "cliente,region,monto\nAna,Sur,10\nBob,Sur,20\nAna,Sur,5\n"
	res, err := svc.Process(context.Background(), "ventas.csv", strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, ',', res.Delimiter)
	assert.Equal(t, 3, res.Rows)
	require.Len(t, res.Summary.Regions, 1)
	assert.Equal(t, 2, res.Summary.Regions[0].UniqueCustomers)
	assert.Equal(t, "35", res.Summary.Regions[0].TotalAmount.String())
}

func TestProcess_Latin1Upload(t *testing.T) {
	// Only a certain detection may override the Latin-1 default.
	svc, store := newTestServiceWithOptions(t, Options{Charset: charset.Options{MinConfidence: 1}})

	input := []byte("cliente;regi\xf3n;monto\n" +
		"Jos\xe9 Mu\xf1oz;Tucum\xe1n;10\n" +
		"Mar\xeda Ib\xe1\xf1ez;C\xf3rdoba;20\n")
	res, err := svc.Process(context.Background(), "ventas.csv", bytes.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rows)
	assert.NotEqual(t, charset.UTF8, res.Encoding.Encoding)

	clean := readArtifact(t, store, res.JobID, CleanFile)
	assert.True(t, utf8.ValidString(clean))
	assert.Equal(t, "\ufeffcliente;region;monto\n"+
		"José Muñoz;Tucumán;10\n"+
		"María Ibáñez;Córdoba;20\n", clean)
}

func TestProcess_UTF8SkipsDetection(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.Process(context.Background(), "ventas.csv", strings.NewReader("cliente;región;monto\nJosé;Norte;10\n"))
	require.NoError(t, err)

	assert.Equal(t, "UTF-8", res.Encoding.Encoding)
	assert.False(t, res.Encoding.IsFallback())
	assert.Equal(t, "región", res.Columns.Region.Name)
}

func TestProcess_MissingColumns(t *testing.T) {
	svc, store := newTestService(t)

	res, err := svc.Process(context.Background(), "ventas.csv", strings.NewReader("cliente;monto\nAna;10\n"))
	require.Error(t, err)
	assert.Nil(t, res)

	var mce *mapper.MissingColumnsError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, []mapper.Role{mapper.RoleRegion}, mce.Missing)
	assert.ErrorIs(t, err, mapper.ErrMissingColumns)

	jobs, err := store.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs, "failed jobs must not leave files behind")
}

func TestProcess_EmptyUpload(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Process(context.Background(), "ventas.csv", strings.NewReader(""))
	var pe *parser.ParseError
	require.True(t, errors.As(err, &pe))
	assert.ErrorIs(t, err, parser.ErrEmptyFile)
}

func TestProcess_AllRowsDropped(t *testing.T) {
	svc, store := newTestService(t)

	res, err := svc.Process(context.Background(), "ventas.csv", strings.NewReader("cliente;region;monto\nAna;Norte;0\nBob;Sur;abc\n"))
	require.NoError(t, err)

	assert.Equal(t, 0, res.Rows)
	assert.Equal(t, 2, res.Dropped)
	assert.Empty(t, res.Summary.Regions)
	assert.Equal(t, "\ufeffcliente;region;monto\n", readArtifact(t, store, res.JobID, CleanFile))
}

func TestProcess_RemovesDecodedFile(t *testing.T) {
	svc, store := newTestService(t)

	res, err := svc.Process(context.Background(), "ventas.csv", strings.NewReader("cliente;region;monto\nAna;Norte;10\n"))
	require.NoError(t, err)

	_, _, err = store.Open(context.Background(), res.JobID, DecodedFile)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, _, err = store.Open(context.Background(), res.JobID, ReportFile)
	assert.NoError(t, err)
}

func TestProcess_Idempotent(t *testing.T) {
	svc, store := newTestService(t)
	input := "Cliente,Región,Monto\nAna,Norte,\"1,5\"\nBob,Sur,2\n"

	first, err := svc.Process(context.Background(), "a.csv", strings.NewReader(input))
	require.NoError(t, err)
	second, err := svc.Process(context.Background(), "a.csv", strings.NewReader(input))
	require.NoError(t, err)

	assert.NotEqual(t, first.JobID, second.JobID)
	assert.Equal(t,
		readArtifact(t, store, first.JobID, CleanFile),
		readArtifact(t, store, second.JobID, CleanFile),
	)
	require.Len(t, second.Summary.Regions, len(first.Summary.Regions))
	for i, want := range first.Summary.Regions {
		got := second.Summary.Regions[i]
		assert.Equal(t, want.Region, got.Region)
		assert.Equal(t, want.UniqueCustomers, got.UniqueCustomers)
		assert.Equal(t, want.Rows, got.Rows)
		assert.True(t, want.TotalAmount.Equal(got.TotalAmount), "region %s: %s != %s", want.Region, want.TotalAmount, got.TotalAmount)
	}
	assert.Equal(t, first.Summary.TotalRows, second.Summary.TotalRows)
	assert.Equal(t, first.Summary.UniqueCustomers, second.Summary.UniqueCustomers)
	assert.True(t, first.Summary.TotalAmount.Equal(second.Summary.TotalAmount))
}

func TestClean_RerunProducesSameTable(t *testing.T) {
	svc, store := newTestService(t)

	res, err := svc.Process(context.Background(), "ventas.csv", strings.NewReader("cliente;region;monto\nAna;Norte;10\n"))
	require.NoError(t, err)
	before := readArtifact(t, store, res.JobID, CleanFile)

	again, err := svc.Clean(context.Background(), res.JobID)
	require.NoError(t, err)
	assert.Equal(t, res.Rows, again.Rows)
	assert.Equal(t, before, readArtifact(t, store, res.JobID, CleanFile))
}

func TestProcess_ConcurrentJobsAreIsolated(t *testing.T) {
	svc, store := newTestService(t)

	regions := []string{"Norte", "Sur", "Este", "Oeste", "Centro", "Cuyo", "NOA", "NEA"}
	results := make([]*ProcessResult, len(regions))

	var wg sync.WaitGroup
	for i, region := range regions {
		wg.Add(1)
		go func(i int, region string) {
			defer wg.Done()
			input := "cliente;region;monto\nAna;" + region + ";10\n"
			res, err := svc.Process(context.Background(), "ventas.csv", strings.NewReader(input))
			assert.NoError(t, err)
			results[i] = res
		}(i, region)
	}
	wg.Wait()

	seen := make(map[uuid.UUID]bool)
	for i, res := range results {
		require.NotNil(t, res)
		assert.False(t, seen[res.JobID])
		seen[res.JobID] = true

		clean := readArtifact(t, store, res.JobID, CleanFile)
		assert.Equal(t, "\ufeffcliente;region;monto\nAna;"+regions[i]+";10\n", clean)
	}
}

func TestProcess_Workbook(t *testing.T) {
	svc, store := newTestService(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Cliente", "Zona", "Monto"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Ana", "Norte", 15.5}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"Bob", "Norte", -2}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := svc.Process(context.Background(), "ventas.xlsx", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, FormatXLSX, res.Format)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, 1, res.DropReasons[parser.DropNonPositiveAmount])
	assert.Equal(t, "\ufeffcliente;region;monto\nAna;Norte;15.5\n", readArtifact(t, store, res.JobID, CleanFile))
}

func TestProcess_CanceledContext(t *testing.T) {
	svc, _ := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Process(ctx, "ventas.csv", strings.NewReader("cliente;region;monto\nAna;Norte;10\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummary(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.Process(context.Background(), "ventas.csv", strings.NewReader("cliente;region;monto\nAna;Norte;10\nBob;Sur;30\n"))
	require.NoError(t, err)

	summary, err := svc.Summary(context.Background(), res.JobID)
	require.NoError(t, err)
	require.Len(t, summary.Regions, 2)
	assert.Equal(t, "Sur", summary.Regions[0].Region)
	assert.Equal(t, 2, summary.TotalRows)

	_, err = svc.Summary(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOpenArtifact(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.Process(context.Background(), "ventas.csv", strings.NewReader("cliente;region;monto\nAna;Norte;10\n"))
	require.NoError(t, err)

	tests := []struct {
		name     string
		artifact Artifact
		wantName string
		wantErr  error
	}{
		{"clean csv", ArtifactCSV, CleanFile, nil},
		{"report", ArtifactReport, ReportFile, nil},
		{"unknown", Artifact("pdf"), "", ErrUnknownArtifact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, info, err := svc.OpenArtifact(context.Background(), res.JobID, tt.artifact)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer rc.Close()
			assert.Equal(t, tt.wantName, info.Name)
			assert.Positive(t, info.Size)
		})
	}
}
