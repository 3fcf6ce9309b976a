// Package export renders attendance sheets as CSV or PDF downloads.
package export

import (
	"fmt"
	"strings"
)

// Format is a download format.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat accepts "csv" or "pdf" in any case. Empty means CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType is the MIME type served with the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// Field is one labelled line of a sheet summary.
type Field struct {
	Label string
	Value string
}

// Sheet is a titled table. Every row must have len(Headers) cells.
type Sheet struct {
	Title   string
	Summary []Field
	Headers []string
	Rows    [][]string
	// Widths are relative column widths for PDF output; equal when empty.
	Widths []float64
}

func (s Sheet) check() error {
	if len(s.Headers) == 0 {
		return fmt.Errorf("sheet requires at least one header")
	}
	for i, row := range s.Rows {
		if len(row) != len(s.Headers) {
			return fmt.Errorf("row %d has %d cells, want %d", i+1, len(row), len(s.Headers))
		}
	}
	return nil
}

// Render encodes sheet in format.
func Render(format Format, sheet Sheet) ([]byte, error) {
	switch format {
	case FormatCSV:
		return RenderCSV(sheet)
	case FormatPDF:
		return RenderPDF(sheet)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
