// Package csvcodec encodes place records into the CSV snapshot stored on a
// job and parses snapshots back into header-keyed rows.
package csvcodec

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"place-discovery-service/internal/entity"
)

const (
	ColName         = "name"
	ColAddress      = "address"
	ColLatitude     = "latitude"
	ColLongitude    = "longitude"
	ColLocality     = "locality"
	ColPhone        = "phone"
	ColWebsite      = "website"
	ColRating       = "rating"
	ColReviewCount  = "review_count"
	ColOpeningHours = "opening_hours"
	ColCategories   = "categories"
	ColSources      = "sources"
	ColSourceIDs    = "source_ids"
)

const (
	listSep  = "|"
	hoursSep = " | "
)

var header = []string{
	ColName, ColAddress, ColLatitude, ColLongitude, ColLocality, ColPhone, ColWebsite,
	ColRating, ColReviewCount, ColOpeningHours, ColCategories, ColSources, ColSourceIDs,
}

// Row is one decoded line keyed by header name. Columns missing from a
// short line are absent from the map.
type Row map[string]string

var (
	ErrUnterminatedQuote = errors.New("csv: unterminated quoted field")
	ErrBareQuote         = errors.New("csv: unexpected character after closing quote")
)

// Header returns a copy of the snapshot column names.
func Header() []string {
	return append([]string(nil), header...)
}

// Encode renders records as a CSV document with a header line. Every line,
// including the last, ends with "\n".
func Encode(records []entity.PlaceRecord) string {
	var b strings.Builder
	writeLine(&b, header)
	for _, r := range records {
		writeLine(&b, recordFields(r))
	}
	return b.String()
}

// EncodeRows renders already-decoded rows under the given header.
func EncodeRows(cols []string, rows []Row) string {
	var b strings.Builder
	writeLine(&b, cols)
	fields := make([]string, len(cols))
	for _, row := range rows {
		for i, c := range cols {
			fields[i] = row[c]
		}
		writeLine(&b, fields)
	}
	return b.String()
}

func recordFields(r entity.PlaceRecord) []string {
	lat, lng := "", ""
	if r.Location != nil {
		lat = strconv.FormatFloat(r.Location.Lat, 'f', -1, 64)
		lng = strconv.FormatFloat(r.Location.Lng, 'f', -1, 64)
	}
	return []string{
		r.Name,
		r.Address,
		lat,
		lng,
		r.Locality,
		r.Phone,
		r.Website,
		strconv.FormatFloat(r.Rating, 'f', -1, 64),
		strconv.Itoa(r.ReviewCount),
		strings.Join(r.OpeningHours, hoursSep),
		strings.Join(r.Categories, listSep),
		strings.Join(r.Sources, listSep),
		formatSourceIDs(r.SourceIDs),
	}
}

func formatSourceIDs(ids map[string]string) string {
	if len(ids) == 0 {
		return ""
	}
	providers := make([]string, 0, len(ids))
	for p := range ids {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	parts := make([]string, 0, len(ids))
	for _, p := range providers {
		parts = append(parts, p+":"+ids[p])
	}
	return strings.Join(parts, listSep)
}

// SplitList splits a list cell (categories, sources) back into values.
func SplitList(cell string) []string {
	if cell == "" {
		return nil
	}
	return strings.Split(cell, listSep)
}

// ParseSourceIDs reverses the source_ids cell encoding.
func ParseSourceIDs(cell string) map[string]string {
	if cell == "" {
		return nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(cell, listSep) {
		provider, id, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		out[provider] = id
	}
	return out
}

func writeLine(b *strings.Builder, fields []string) {
	if len(fields) == 1 && fields[0] == "" {
		// keep a lone empty value distinguishable from a blank line
		b.WriteString(`""` + "\n")
		return
	}
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(quote(f))
	}
	b.WriteByte('\n')
}

func quote(s string) string {
	if !strings.ContainsAny(s, ",\"\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Decode parses text into rows named by the first line. An empty document
// yields no rows. Blank lines are skipped.
func Decode(text string) ([]Row, error) {
	lines, err := parse(text)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}

	cols := lines[0]
	rows := make([]Row, 0, len(lines)-1)
	for _, line := range lines[1:] {
		row := make(Row, len(cols))
		for i, v := range line {
			if i >= len(cols) {
				break
			}
			row[cols[i]] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// DecodeHeader returns the header line of text, or nil for an empty document.
func DecodeHeader(text string) ([]string, error) {
	lines, err := parse(text)
	if err != nil || len(lines) == 0 {
		return nil, err
	}
	return lines[0], nil
}

// parse is a character-level RFC 4180 reader accepting both "\n" and
// "\r\n" terminators.
func parse(text string) ([][]string, error) {
	var (
		lines  [][]string
		fields []string
		field  strings.Builder
		line   = 1
		quoted bool // the current line has a quoted field
	)

	endField := func() {
		fields = append(fields, field.String())
		field.Reset()
	}
	endLine := func() {
		endField()
		// only a raw empty line is blank; `""` is a row with one empty value
		if quoted || !(len(fields) == 1 && fields[0] == "") {
			lines = append(lines, fields)
		}
		fields = nil
		quoted = false
		line++
	}

	i := 0
	n := len(text)
	for i < n {
		c := text[i]
		switch {
		case c == '"' && field.Len() == 0:
			quoted = true
			i++
			closed := false
			for i < n {
				if text[i] == '"' {
					if i+1 < n && text[i+1] == '"' {
						field.WriteByte('"')
						i += 2
						continue
					}
					closed = true
					i++
					break
				}
				if text[i] == '\n' {
					line++
				}
				field.WriteByte(text[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("line %d: %w", line, ErrUnterminatedQuote)
			}
			if i < n && text[i] != ',' && text[i] != '\n' && text[i] != '\r' {
				return nil, fmt.Errorf("line %d: %w", line, ErrBareQuote)
			}
		case c == ',':
			endField()
			i++
		case c == '\r' && i+1 < n && text[i+1] == '\n':
			endLine()
			i += 2
		case c == '\n':
			endLine()
			i++
		default:
			field.WriteByte(c)
			i++
		}
	}
	if field.Len() > 0 || len(fields) > 0 || quoted {
		endLine()
	}
	return lines, nil
}
