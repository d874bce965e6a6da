// Package extract parses documents into text units and splits them
// into fixed-size word-window chunks for embedding.
package extract

import (
	"context"
)

// Unit is a contiguous run of text extracted from one region of a
// document: a PDF page, a spreadsheet sheet, or a paragraph block.
type Unit struct {
	// Location is a human-readable region label ("page 3", "sheet Grades").
	Location string
	// Ordinal is the 1-indexed position of the region within the document.
	Ordinal int
	// Text is the extracted plain text.
	Text string
}

// Chunk is a retrievable unit of document content.
type Chunk struct {
	ID         string // hex(SHA-256(documentID ":" seq))[:16]
	DocumentID string
	Seq        int    // 0-indexed position within the document
	Location   string // Region label inherited from the source unit
	Ordinal    int    // Region ordinal inherited from the source unit
	Text       string
	WordCount  int
}

// Parser extracts text units from one document format.
type Parser interface {
	// Parse reads the document at path and returns its text units in
	// document order. Units with no extractable text are omitted.
	Parse(ctx context.Context, path string) ([]Unit, error)
}
