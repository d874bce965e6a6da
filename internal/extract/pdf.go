package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	scouterr "github.com/docscout/docscout/internal/errors"
)

// PDFParser extracts page text from PDF documents.
type PDFParser struct{}

var _ Parser = (*PDFParser)(nil)

// Parse returns one unit per page that has extractable text.
func (p *PDFParser) Parse(ctx context.Context, path string) (units []Unit, err error) {
	// The pdf package panics on some malformed documents; a corrupt file
	// must surface as a per-document extraction error, not kill the build.
	defer func() {
		if r := recover(); r != nil {
			units = nil
			err = scouterr.ExtractionError(path, fmt.Errorf("pdf parser panic: %v", r))
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, scouterr.ExtractionError(path, err)
	}
	defer func() { _ = f.Close() }()

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Pages that fail individually are skipped; the rest of the
			// document still indexes.
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		units = append(units, Unit{
			Location: fmt.Sprintf("page %d", i),
			Ordinal:  i,
			Text:     text,
		})
	}

	return units, nil
}
