package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"

	scouterr "github.com/docscout/docscout/internal/errors"
)

// File signatures used to pick a parser. Extension hints are not trusted:
// a renamed file parses by what it actually contains.
var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// ParserFor sniffs the file signature at path and returns the parser
// capable of extracting it. Legacy OLE documents (.doc/.xls) are
// recognized but not extractable; they produce a deterministic
// extraction error so the caller can skip the document.
func ParserFor(path string) (Parser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, scouterr.New(scouterr.ErrCodeFileNotFound,
			fmt.Sprintf("cannot open %s", path), err)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, 8)
	n, _ := f.Read(header)
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, pdfMagic):
		return &PDFParser{}, nil

	case bytes.HasPrefix(header, zipMagic):
		return parserForZip(path)

	case bytes.HasPrefix(header, oleMagic):
		return nil, scouterr.ExtractionError(path,
			fmt.Errorf("legacy OLE document format is not supported; convert to .docx/.xlsx"))

	default:
		// Anything else is treated as plain text
		return &TextParser{}, nil
	}
}

// parserForZip inspects a ZIP container for Office Open XML markers.
func parserForZip(path string) (Parser, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, scouterr.ExtractionError(path, fmt.Errorf("corrupt zip container: %w", err))
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		switch f.Name {
		case "word/document.xml":
			return &DocxParser{}, nil
		case "xl/workbook.xml":
			return &XlsxParser{}, nil
		}
	}

	return nil, scouterr.ExtractionError(path,
		fmt.Errorf("zip container is not a supported Office document"))
}
