package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth = 190.0
	rowHeight = 7.0
)

// RenderPDF lays the sheet out on A4 portrait pages: title, summary lines,
// then the table with its header repeated on every page.
func RenderPDF(sheet Sheet) ([]byte, error) {
	if err := sheet.check(); err != nil {
		return nil, err
	}
	widths := columnWidths(sheet)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	header := func() {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(235, 235, 235)
		for i, h := range sheet.Headers {
			pdf.CellFormat(widths[i], 8, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			header()
		}
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	if sheet.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(sheet.Title), "", 1, "L", false, 0, "")
	}
	if len(sheet.Summary) > 0 {
		for _, f := range sheet.Summary {
			pdf.SetFont("Arial", "B", 10)
			pdf.CellFormat(40, 6, tr(f.Label), "", 0, "L", false, 0, "")
			pdf.SetFont("Arial", "", 10)
			pdf.CellFormat(0, 6, tr(f.Value), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(4)

	header()
	for _, row := range sheet.Rows {
		for i, cell := range row {
			pdf.CellFormat(widths[i], rowHeight, tr(cell), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(sheet Sheet) []float64 {
	n := len(sheet.Headers)
	out := make([]float64, n)
	total := 0.0
	if len(sheet.Widths) == n {
		for _, w := range sheet.Widths {
			if w > 0 {
				total += w
			}
		}
	}
	for i := range out {
		if total == 0 {
			out[i] = pageWidth / float64(n)
			continue
		}
		w := sheet.Widths[i]
		if w < 0 {
			w = 0
		}
		out[i] = pageWidth * w / total
	}
	return out
}
