package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset(rows int) Dataset {
	d := Dataset{Headers: []string{"Date", "Subject", "Location"}}
	for i := 0; i < rows; i++ {
		d.Rows = append(d.Rows, map[string]string{
			"Date":     fmt.Sprintf("2024-01-%02d", i%28+1),
			"Subject":  "Programación, parte " + fmt.Sprint(i),
			"Location": "Aula 1.1",
		})
	}
	return d
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset(2))
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Date", "Subject", "Location"}, records[0])
	assert.Equal(t, "Programación, parte 1", records[2][1])
}

func TestCSVExporterOptions(t *testing.T) {
	out, err := NewCSVExporter(WithDelimiter(';'), WithBOM()).Render(sampleDataset(1))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, utf8BOM))

	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(out, utf8BOM)))
	reader.Comma = ';'
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "Aula 1.1", records[1][2])
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestDatasetColumn(t *testing.T) {
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, sampleDataset(2).Column("Date"))
}

func TestPDFExporterRender(t *testing.T) {
	e := NewPDFExporter(WithLandscape(), WithColumnWeights(map[string]float64{"Subject": 3}))
	e.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	out, err := e.Render(sampleDataset(80), "Exámenes ETSINF")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.GreaterOrEqual(t, bytes.Count(out, []byte("/Type /Page\n")), 2)
}

func TestPDFExporterColumnWidths(t *testing.T) {
	e := NewPDFExporter(WithColumnWeights(map[string]float64{"Subject": 2}))
	widths := e.columnWidths([]string{"Date", "Subject", "Location"}, 200)
	assert.Equal(t, []float64{50, 100, 50}, widths)
}

func TestPDFExporterRequiresHeaders(t *testing.T) {
	_, err := NewPDFExporter().Render(Dataset{}, "")
	assert.Error(t, err)
}
