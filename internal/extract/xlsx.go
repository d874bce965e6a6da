package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	scouterr "github.com/docscout/docscout/internal/errors"
)

// XlsxParser extracts sheet text from Office Open XML spreadsheets.
type XlsxParser struct{}

var _ Parser = (*XlsxParser)(nil)

// Parse returns one unit per sheet that has any cell content.
// Cells in a row are joined with " | " and rows with newlines, so a
// row reads as one coherent line of text for chunking.
func (p *XlsxParser) Parse(ctx context.Context, path string) ([]Unit, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, scouterr.ExtractionError(path, err)
	}
	defer func() { _ = f.Close() }()

	var units []Unit
	for i, sheet := range f.GetSheetList() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, scouterr.ExtractionError(path,
				fmt.Errorf("sheet %q: %w", sheet, err))
		}

		var lines []string
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " | "))
			if line != "" && strings.Trim(line, "| ") != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}

		units = append(units, Unit{
			Location: fmt.Sprintf("sheet %s", sheet),
			Ordinal:  i + 1,
			Text:     strings.Join(lines, "\n"),
		})
	}

	return units, nil
}
