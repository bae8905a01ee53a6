package compare

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

const (
	exportSheet        = "Comparison"
	exportImageWorkers = 8
	exportImageRowPt   = 60
	maxSheetHyperlinks = 65530
)

// ImageSource downloads product pictures for the workbook.
type ImageSource interface {
	FetchImage(ctx context.Context, url string) ([]byte, string, error)
}

// WorkbookStats summarizes one written workbook.
type WorkbookStats struct {
	Rows          int
	Images        int
	ImageFailures int
}

type exportStyles struct {
	header   int
	price    int
	cheapest int
	higher   int
	link     int
}

type picture struct {
	data []byte
	ext  string
}

type sheetWriter struct {
	f      *excelize.File
	styles exportStyles
	links  int
}

// BuildWorkbook renders the table as an xlsx workbook: a styled header, one
// regular and one promo column per price column, merchant links and product
// images. Missing images are skipped; images may be nil.
func BuildWorkbook(ctx context.Context, t Table, images ImageSource) ([]byte, WorkbookStats, error) {
	stats := WorkbookStats{Rows: len(t.Rows)}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, stats, fmt.Errorf("name sheet: %w", err)
	}
	styles, err := newExportStyles(f)
	if err != nil {
		return nil, stats, err
	}
	sw := &sheetWriter{f: f, styles: styles}

	single := !NewFingerprint(t.Site, "").AllSites() && len(t.Columns) == 2
	if err := sw.header(t, single); err != nil {
		return nil, stats, err
	}

	pictures := fetchPictures(ctx, t.Rows, images)
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	for i, r := range t.Rows {
		rowIdx := i + 2
		if err := sw.row(rowIdx, r, single); err != nil {
			return nil, stats, fmt.Errorf("write row %s: %w", r.SKU, err)
		}
		pic := pictures[i]
		if pic == nil {
			if r.ImageURL != "" && images != nil {
				stats.ImageFailures++
			}
			continue
		}
		if err := sw.picture(rowIdx, pic); err != nil {
			stats.ImageFailures++
			continue
		}
		stats.Images++
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, stats, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, stats, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), stats, nil
}

func newExportStyles(f *excelize.File) (exportStyles, error) {
	var s exportStyles
	var err error
	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E9EEF5"}},
		Alignment: &excelize.Alignment{Vertical: "center", WrapText: true},
	})
	if err != nil {
		return s, fmt.Errorf("header style: %w", err)
	}
	s.price, err = f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return s, fmt.Errorf("price style: %w", err)
	}
	s.cheapest, err = f.NewStyle(&excelize.Style{
		NumFmt: 2,
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9F2D0"}},
	})
	if err != nil {
		return s, fmt.Errorf("cheapest style: %w", err)
	}
	s.higher, err = f.NewStyle(&excelize.Style{
		NumFmt: 2,
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"F8D7DA"}},
	})
	if err != nil {
		return s, fmt.Errorf("higher style: %w", err)
	}
	s.link, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Color: "1155CC", Underline: "single"}})
	if err != nil {
		return s, fmt.Errorf("link style: %w", err)
	}
	return s, nil
}

func (w *sheetWriter) header(t Table, single bool) error {
	headers := []string{"Praktis Code", "Image", "Praktis Name", "Brand"}
	widths := []float64{16, 16, 48, 18}
	if single {
		label := t.Columns[1].Label
		headers = append(headers, label+" Code", label+" Name")
		widths = append(widths, 20, 44)
	}
	for _, c := range t.Columns {
		headers = append(headers, c.Label+" Regular Price", c.Label+" Promo Price")
		widths = append(widths, 18, 18)
	}
	headers = append(headers, "Status", "Praktis URL")
	widths = append(widths, 16, 48)

	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := w.f.SetCellValue(exportSheet, cell, h); err != nil {
			return err
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := w.f.SetColWidth(exportSheet, col, col, widths[i]); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	return w.f.SetCellStyle(exportSheet, "A1", last, w.styles.header)
}

func (w *sheetWriter) row(rowIdx int, r Row, single bool) error {
	col := 1
	next := func() string {
		cell, _ := excelize.CoordinatesToCellName(col, rowIdx)
		col++
		return cell
	}

	if err := w.text(next(), r.SKU, r.ProductURL); err != nil {
		return err
	}
	next() // image
	if err := w.text(next(), r.Name, r.ProductURL); err != nil {
		return err
	}
	if err := w.text(next(), r.Brand, ""); err != nil {
		return err
	}
	if single {
		compURL := ""
		if len(r.Cells) > 1 {
			compURL = r.Cells[1].URL
		}
		if err := w.text(next(), r.CompetitorSKU, ""); err != nil {
			return err
		}
		if err := w.text(next(), r.CompetitorName, compURL); err != nil {
			return err
		}
	}
	for i, c := range r.Cells {
		link := ""
		if !single && i > 0 {
			link = c.URL
		}
		style := w.styles.price
		switch c.Classification {
		case Cheapest:
			style = w.styles.cheapest
		case Higher:
			style = w.styles.higher
		}
		regularStyle, promoStyle := style, w.styles.price
		if c.Promo != nil {
			regularStyle, promoStyle = w.styles.price, style
		}
		if err := w.number(next(), c.Regular, regularStyle, link); err != nil {
			return err
		}
		if err := w.number(next(), c.Promo, promoStyle, ""); err != nil {
			return err
		}
	}
	if err := w.text(next(), string(r.Status), ""); err != nil {
		return err
	}
	return w.text(next(), r.ProductURL, "")
}

func (w *sheetWriter) text(cell, value, link string) error {
	if err := w.f.SetCellValue(exportSheet, cell, value); err != nil {
		return err
	}
	return w.hyperlink(cell, link, w.styles.link)
}

// number writes present prices as numeric cells; absent ones stay blank.
func (w *sheetWriter) number(cell string, value *float64, style int, link string) error {
	if value == nil {
		return nil
	}
	if err := w.f.SetCellValue(exportSheet, cell, *value); err != nil {
		return err
	}
	if err := w.f.SetCellStyle(exportSheet, cell, cell, style); err != nil {
		return err
	}
	return w.hyperlink(cell, link, 0)
}

// hyperlink links the cell and, when style is non-zero, restyles it. Price
// cells keep their classification fill.
func (w *sheetWriter) hyperlink(cell, link string, style int) error {
	if link == "" || w.links >= maxSheetHyperlinks {
		return nil
	}
	if err := w.f.SetCellHyperLink(exportSheet, cell, link, "External"); err != nil {
		return err
	}
	w.links++
	if style == 0 {
		return nil
	}
	return w.f.SetCellStyle(exportSheet, cell, cell, style)
}

func (w *sheetWriter) picture(rowIdx int, pic *picture) error {
	cell, err := excelize.CoordinatesToCellName(2, rowIdx)
	if err != nil {
		return err
	}
	if err := w.f.AddPictureFromBytes(exportSheet, cell, &excelize.Picture{
		Extension: pic.ext,
		File:      pic.data,
		Format:    &excelize.GraphicOptions{AutoFit: true, LockAspectRatio: true, Positioning: "oneCell"},
	}); err != nil {
		return err
	}
	return w.f.SetRowHeight(exportSheet, rowIdx, exportImageRowPt)
}

// fetchPictures downloads row images with bounded concurrency. A failed
// download leaves its slot nil.
func fetchPictures(ctx context.Context, rows []Row, images ImageSource) []*picture {
	out := make([]*picture, len(rows))
	if images == nil {
		return out
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportImageWorkers)
	for i, r := range rows {
		if r.ImageURL == "" {
			continue
		}
		i, url := i, r.ImageURL
		g.Go(func() error {
			data, ext, err := images.FetchImage(gctx, url)
			if err == nil && len(data) > 0 {
				out[i] = &picture{data: data, ext: ext}
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
