package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nicktill/gasqc/pkg/pipeline"
	"github.com/nicktill/gasqc/pkg/sensor"
	"github.com/nicktill/gasqc/pkg/summary"
)

// Table names one of the tables of an analysis run
type Table string

const (
	TablePoints  Table = "points"
	TableHourly  Table = "hourly"
	TableSummary Table = "summary"
)

// Tables lists every analysis table
var Tables = []Table{TablePoints, TableHourly, TableSummary}

// Formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

const exportVersion = "1.0"

var (
	// ErrUnknownTable is returned for a table name outside points, hourly and summary
	ErrUnknownTable = errors.New("unknown table")

	// ErrUnknownFormat is returned for a format other than json or csv
	ErrUnknownFormat = errors.New("unknown format")
)

// ParseTable checks a table name
func ParseTable(s string) (Table, error) {
	switch t := Table(s); t {
	case TablePoints, TableHourly, TableSummary:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, s)
	}
}

// ExportResult contains stats about the export
type ExportResult struct {
	SensorID     string    `json:"sensor_id"`
	RunID        string    `json:"run_id"`
	Table        Table     `json:"table"`
	Format       string    `json:"format"`
	RowsExported int       `json:"rows_exported"`
	ExportedAt   time.Time `json:"exported_at"`
}

// Metadata heads every JSON export
type Metadata struct {
	ExportedAt  time.Time `json:"exported_at"`
	SensorID    string    `json:"sensor_id"`
	RunID       string    `json:"run_id"`
	CompletedAt time.Time `json:"completed_at"`
	Table       Table     `json:"table"`
	RowCount    int       `json:"row_count"`
	Version     string    `json:"version"`
}

// SummaryRow is one line of the combined summary table
type SummaryRow struct {
	Level string `json:"level"` // "points" or "hourly"
	summary.Row
}

// Exporter writes the tables of an analysis run
type Exporter struct {
	now func() time.Time
}

// NewExporter creates a new exporter
func NewExporter() *Exporter {
	return &Exporter{now: time.Now}
}

// Export writes one table of res to w in the given format.
func (e *Exporter) Export(w io.Writer, res *pipeline.Result, table Table, format string) (*ExportResult, error) {
	var (
		rows int
		err  error
	)

	switch format {
	case FormatJSON:
		rows, err = e.exportJSON(w, res, table)
	case FormatCSV:
		rows, err = exportCSV(w, res, table)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}

	return &ExportResult{
		SensorID:     res.SensorID,
		RunID:        res.RunID,
		Table:        table,
		Format:       format,
		RowsExported: rows,
		ExportedAt:   e.now(),
	}, nil
}

func (e *Exporter) exportJSON(w io.Writer, res *pipeline.Result, table Table) (int, error) {
	var (
		rows  interface{}
		count int
	)
	switch table {
	case TablePoints:
		rows, count = res.Points, len(res.Points)
	case TableHourly:
		rows, count = res.Hourly, len(res.Hourly)
	case TableSummary:
		s := summaryRows(res)
		rows, count = s, len(s)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	exportData := struct {
		Metadata Metadata    `json:"metadata"`
		Rows     interface{} `json:"rows"`
	}{
		Metadata: Metadata{
			ExportedAt:  e.now(),
			SensorID:    res.SensorID,
			RunID:       res.RunID,
			CompletedAt: res.CompletedAt,
			Table:       table,
			RowCount:    count,
			Version:     exportVersion,
		},
		Rows: rows,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(exportData); err != nil {
		return 0, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return count, nil
}

func exportCSV(w io.Writer, res *pipeline.Result, table Table) (int, error) {
	var (
		header []string
		rows   [][]string
	)

	switch table {
	case TablePoints:
		header = []string{"timestamp", "value", "tag", "diff", "derived"}
		for _, p := range res.Points {
			rows = append(rows, []string{
				p.Timestamp.Format(time.RFC3339),
				formatFloat(p.Value),
				string(p.Tag),
				formatFloat(p.Diff),
				formatFloat(p.Derived),
			})
		}
	case TableHourly:
		header = []string{"timestamp", "hour_of_day", "mean", "std", "count", "expected_count",
			"validity_ratio", "tag", "quantile_01", "quantile_99"}
		for _, a := range res.Hourly {
			rows = append(rows, []string{
				a.Timestamp.Format(time.RFC3339),
				strconv.Itoa(a.HourOfDay),
				formatFloat(a.Mean),
				formatFloat(a.Std),
				strconv.Itoa(a.Count),
				formatFloat(sensor.NullFloat(a.ExpectedCount)),
				formatFloat(sensor.NullFloat(a.ValidityRatio)),
				string(a.Tag),
				formatFloat(a.Quantile01),
				formatFloat(a.Quantile99),
			})
		}
	case TableSummary:
		header = []string{"level", "tag", "count", "percent"}
		for _, r := range summaryRows(res) {
			rows = append(rows, []string{r.Level, string(r.Tag), strconv.Itoa(r.Count), formatFloat(r.Percent)})
		}
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return 0, fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return 0, fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return len(rows), nil
}

func summaryRows(res *pipeline.Result) []SummaryRow {
	rows := make([]SummaryRow, 0, len(res.PointSummary.Rows)+len(res.HourlySummary.Rows))
	for _, r := range res.PointSummary.Rows {
		rows = append(rows, SummaryRow{Level: string(TablePoints), Row: r})
	}
	for _, r := range res.HourlySummary.Rows {
		rows = append(rows, SummaryRow{Level: string(TableHourly), Row: r})
	}
	return rows
}

// formatFloat writes absent values as empty cells
func formatFloat(f sensor.NullFloat) string {
	if f.IsNull() {
		return ""
	}
	return strconv.FormatFloat(f.Float(), 'f', -1, 64)
}
