package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestSplit_FixedWindowsNoOverlap(t *testing.T) {
	c := NewChunker(10)
	docID := DocumentID("notes/bio.txt")

	chunks := c.Split(docID, []Unit{{Location: "block 1", Ordinal: 1, Text: words(25)}})

	require.Len(t, chunks, 3)
	assert.Equal(t, 10, chunks[0].WordCount)
	assert.Equal(t, 10, chunks[1].WordCount)
	assert.Equal(t, 5, chunks[2].WordCount)

	// No overlap: consecutive windows continue where the last ended
	assert.True(t, strings.HasPrefix(chunks[0].Text, "w0 "))
	assert.True(t, strings.HasPrefix(chunks[1].Text, "w10 "))
	assert.True(t, strings.HasPrefix(chunks[2].Text, "w20 "))
}

func TestSplit_SequenceRunsAcrossUnits(t *testing.T) {
	c := NewChunker(10)
	docID := DocumentID("report.pdf")

	chunks := c.Split(docID, []Unit{
		{Location: "page 1", Ordinal: 1, Text: words(15)},
		{Location: "page 2", Ordinal: 2, Text: words(5)},
	})

	require.Len(t, chunks, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{chunks[0].Seq, chunks[1].Seq, chunks[2].Seq})
	assert.Equal(t, "page 1", chunks[1].Location)
	assert.Equal(t, "page 2", chunks[2].Location)
	assert.Equal(t, 2, chunks[2].Ordinal)
}

func TestSplit_DeterministicIDs(t *testing.T) {
	c := NewChunker(10)
	docID := DocumentID("report.pdf")
	units := []Unit{{Location: "page 1", Ordinal: 1, Text: words(30)}}

	first := c.Split(docID, units)
	second := c.Split(docID, units)

	require.Len(t, first, 3)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Len(t, first[i].ID, 16)
	}

	// Distinct seq and distinct documents give distinct IDs
	assert.NotEqual(t, first[0].ID, first[1].ID)
	assert.NotEqual(t, first[0].ID, ChunkID(DocumentID("other.pdf"), 0))
}

func TestSplit_EmptyAndWhitespaceUnits(t *testing.T) {
	c := NewChunker(10)

	chunks := c.Split(DocumentID("x"), []Unit{
		{Location: "page 1", Ordinal: 1, Text: "   \n\t "},
		{Location: "page 2", Ordinal: 2, Text: ""},
	})

	assert.Empty(t, chunks)
}

func TestNewChunker_DefaultsOnNonPositive(t *testing.T) {
	assert.Equal(t, DefaultWindowSize, NewChunker(0).WindowSize)
	assert.Equal(t, DefaultWindowSize, NewChunker(-5).WindowSize)
	assert.Equal(t, 50, NewChunker(50).WindowSize)
}

func TestDocumentID_StableAndPathSensitive(t *testing.T) {
	a := DocumentID("docs/a.pdf")
	assert.Equal(t, a, DocumentID("docs/a.pdf"))
	assert.NotEqual(t, a, DocumentID("docs/b.pdf"))
	assert.Len(t, a, 16)
}
