package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultWindowSize is the default chunk window size in words.
const DefaultWindowSize = 200

// Chunker splits extracted units into fixed word windows.
type Chunker struct {
	// WindowSize is the chunk size in words (no overlap).
	WindowSize int
}

// NewChunker creates a Chunker with the given window size.
// Non-positive sizes fall back to the default.
func NewChunker(windowSize int) *Chunker {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Chunker{WindowSize: windowSize}
}

// Split chunks the units of one document. Chunk sequence numbers run
// across the whole document, so chunk IDs stay stable as long as the
// content is unchanged.
func (c *Chunker) Split(documentID string, units []Unit) []Chunk {
	var chunks []Chunk
	seq := 0

	for _, unit := range units {
		words := strings.Fields(unit.Text)
		for start := 0; start < len(words); start += c.WindowSize {
			end := start + c.WindowSize
			if end > len(words) {
				end = len(words)
			}
			window := words[start:end]

			chunks = append(chunks, Chunk{
				ID:         ChunkID(documentID, seq),
				DocumentID: documentID,
				Seq:        seq,
				Location:   unit.Location,
				Ordinal:    unit.Ordinal,
				Text:       strings.Join(window, " "),
				WordCount:  len(window),
			})
			seq++
		}
	}

	return chunks
}

// DocumentID derives a stable document identifier from its root-relative path.
func DocumentID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:16]
}

// ChunkID derives a deterministic chunk identifier from the document ID
// and the chunk's sequence number. Stable across rebuilds.
func ChunkID(documentID string, seq int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", documentID, seq)))
	return hex.EncodeToString(sum[:])[:16]
}
