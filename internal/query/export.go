package query

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"battery_log/internal/apperr"
	"battery_log/internal/rowstore"
	"battery_log/internal/schema"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const xlsxSheet = "Battery Log"

// ParseFormat accepts "", "csv" and "xlsx" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", apperr.Validation(fmt.Sprintf("unsupported export format: %s", s))
	}
}

// File is a rendered export ready to be sent as an attachment.
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

// Export renders the rows selected by f.
func (s *Service) Export(ctx context.Context, f Filter, format Format) (File, error) {
	t, err := s.Find(ctx, f)
	if err != nil {
		return File{}, err
	}

	columns := t.Columns
	if len(t.Records) == 0 {
		columns = schema.PrimaryKeys()
	}
	rows := cells(t, columns)

	out := File{Name: exportName(f) + "." + string(format)}
	switch format {
	case FormatXLSX:
		out.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		out.Body, err = renderXLSX(columns, rows)
		if err != nil {
			return File{}, fmt.Errorf("failed to render xlsx export: %w", err)
		}
	default:
		out.ContentType = "text/csv"
		out.Body = renderCSV(columns, rows)
	}

	log.Info().
		Str("file", out.Name).
		Int("rows", len(rows)).
		Msg("Rendered export")
	return out, nil
}

func cells(t rowstore.Table, columns []string) [][]string {
	rows := make([][]string, 0, len(t.Records))
	for _, rec := range t.Records {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = rec[c]
		}
		rows = append(rows, row)
	}
	return rows
}

// renderCSV quotes every cell, header included, and joins lines with "\n".
func renderCSV(header []string, rows [][]string) []byte {
	var buf bytes.Buffer
	writeCSVLine(&buf, header)
	for _, row := range rows {
		buf.WriteByte('\n')
		writeCSVLine(&buf, row)
	}
	return buf.Bytes()
}

func writeCSVLine(buf *bytes.Buffer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(c, `"`, `""`))
		buf.WriteByte('"')
	}
}

func renderXLSX(header []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close workbook")
		}
	}()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	for i, row := range append([][]string{header}, rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// exportName builds the attachment base name from the filter.
func exportName(f Filter) string {
	part := "all"
	switch {
	case strings.TrimSpace(f.BatteryID) != "":
		part = strings.TrimSpace(f.BatteryID)
	case strings.TrimSpace(f.Date) != "":
		part = strings.TrimSpace(f.Date)
	case !f.IsZero():
		from, to := strings.TrimSpace(f.DateFrom), strings.TrimSpace(f.DateTo)
		if from == "" {
			from = "start"
		}
		if to == "" {
			to = "end"
		}
		part = from + "_to_" + to
	}
	return "battery_" + unsafeName.ReplaceAllString(part, "_") + "_export"
}
