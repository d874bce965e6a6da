package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	scouterr "github.com/docscout/docscout/internal/errors"
)

// DocxParser extracts paragraph text from Office Open XML word documents.
// It reads word/document.xml directly from the ZIP container and walks
// the WordprocessingML token stream, collecting <w:t> runs per <w:p>.
type DocxParser struct{}

var _ Parser = (*DocxParser)(nil)

// Parse returns one unit per non-empty paragraph.
func (p *DocxParser) Parse(ctx context.Context, path string) ([]Unit, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, scouterr.ExtractionError(path, fmt.Errorf("corrupt docx container: %w", err))
	}
	defer func() { _ = r.Close() }()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, scouterr.ExtractionError(path, fmt.Errorf("missing word/document.xml"))
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, scouterr.ExtractionError(path, err)
	}
	defer func() { _ = rc.Close() }()

	paragraphs, err := readParagraphs(ctx, rc)
	if err != nil {
		return nil, scouterr.ExtractionError(path, err)
	}

	units := make([]Unit, 0, len(paragraphs))
	for i, text := range paragraphs {
		units = append(units, Unit{
			Location: fmt.Sprintf("paragraph %d", i+1),
			Ordinal:  i + 1,
			Text:     text,
		})
	}
	return units, nil
}

// readParagraphs walks the WordprocessingML token stream and returns
// the text of each non-empty paragraph in document order.
func readParagraphs(ctx context.Context, r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)

	var paragraphs []string
	var current strings.Builder
	inParagraph := false

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
		current.Reset()
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed document xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
			case "tab":
				if inParagraph {
					current.WriteByte(' ')
				}
			case "br":
				if inParagraph {
					current.WriteByte(' ')
				}
			case "t":
				if inParagraph {
					var text string
					if err := decoder.DecodeElement(&text, &t); err != nil {
						return nil, fmt.Errorf("malformed text run: %w", err)
					}
					current.WriteString(text)
				}
			}
		case xml.EndElement:
			if t.Name.Local == "p" && inParagraph {
				flush()
				inParagraph = false
			}
		}
	}

	if inParagraph {
		flush()
	}
	return paragraphs, nil
}
