package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"place-discovery-service/internal/apperr"
	"place-discovery-service/internal/csvcodec"
)

type ExportFormat string

const (
	FormatCSV    ExportFormat = "csv"
	FormatJSON   ExportFormat = "json"
	FormatNDJSON ExportFormat = "ndjson"
	FormatXLSX   ExportFormat = "xlsx"
)

// Export is a rendered snapshot ready to be written to a client.
type Export struct {
	ContentType string
	Filename    string
	Body        []byte
}

// ExportJob renders the stored snapshot. columns selects and orders the
// exported columns; empty means every snapshot column. json is one array of
// row objects, ndjson one row object per line.
func (s *JobService) ExportJob(ctx context.Context, id uuid.UUID, format ExportFormat, columns []string) (Export, error) {
	if format == "" {
		format = FormatCSV
	}
	switch format {
	case FormatCSV, FormatJSON, FormatNDJSON, FormatXLSX:
	default:
		return Export{}, apperr.ValidationField("format", "format must be one of csv, json, ndjson, xlsx")
	}

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return Export{}, err
	}
	if job.Snapshot == nil {
		return Export{}, apperr.Conflict("job has no snapshot yet")
	}
	snapshot := *job.Snapshot

	header, err := csvcodec.DecodeHeader(snapshot)
	if err != nil {
		return Export{}, apperr.Internal("stored snapshot is unreadable", err)
	}
	rows, err := csvcodec.Decode(snapshot)
	if err != nil {
		return Export{}, apperr.Internal("stored snapshot is unreadable", err)
	}
	cols, err := selectColumns(header, columns)
	if err != nil {
		return Export{}, err
	}
	if len(columns) > 0 {
		rows = project(rows, cols)
	}

	var body []byte
	contentType := ""
	switch format {
	case FormatCSV:
		contentType = "text/csv; charset=utf-8"
		body = []byte(csvcodec.EncodeRows(cols, rows))
	case FormatJSON:
		contentType = "application/json"
		if rows == nil {
			rows = []csvcodec.Row{}
		}
		body, err = json.Marshal(rows)
	case FormatNDJSON:
		contentType = "application/x-ndjson"
		body, err = encodeNDJSON(rows)
	case FormatXLSX:
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		body, err = encodeXLSX(cols, rows)
	}
	if err != nil {
		return Export{}, apperr.Internal("render export", err)
	}
	return Export{
		ContentType: contentType,
		Filename:    "job-" + id.String() + "." + string(format),
		Body:        body,
	}, nil
}

// selectColumns validates a requested column list against the snapshot
// header. Duplicates are dropped; order follows the request.
func selectColumns(header, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return header, nil
	}
	known := make(map[string]bool, len(header))
	for _, c := range header {
		known[c] = true
	}
	out := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, c := range requested {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		if !known[c] {
			return nil, apperr.ValidationField("columns", "unknown column "+strconv.Quote(c))
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return header, nil
	}
	return out, nil
}

func project(rows []csvcodec.Row, cols []string) []csvcodec.Row {
	out := make([]csvcodec.Row, len(rows))
	for i, row := range rows {
		p := make(csvcodec.Row, len(cols))
		for _, c := range cols {
			if v, ok := row[c]; ok {
				p[c] = v
			}
		}
		out[i] = p
	}
	return out
}

func encodeNDJSON(rows []csvcodec.Row) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

const xlsxSheet = "Places"

func encodeXLSX(cols []string, rows []csvcodec.Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, err
	}

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return nil, err
	}

	values := make([]any, len(cols))
	for i, row := range rows {
		for j, c := range cols {
			values[j] = row[c]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
