package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDocument(id, path string) *DocumentRecord {
	return &DocumentRecord{
		ID:          id,
		Path:        path,
		Fingerprint: "fp-" + id,
		Size:        1024,
		ModTime:     time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Format:      "pdf",
		IndexedAt:   time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC),
	}
}

func testChunk(id, docID string, seq int) *ChunkRecord {
	return &ChunkRecord{
		ID:         id,
		DocumentID: docID,
		Seq:        seq,
		Location:   "page 1",
		Ordinal:    1,
		Text:       "chunk text " + id,
		WordCount:  3,
		Embedding:  []float32{0.1, 0.2, 0.3, 0.4},
	}
}

func TestSQLiteStoreInMemory(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	count, err := s.CountChunks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSaveAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("doc1", "reports/q1.pdf")
	require.NoError(t, s.SaveDocument(ctx, doc))

	got, err := s.GetDocumentByPath(ctx, "reports/q1.pdf")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, doc.Fingerprint, got.Fingerprint)
	assert.Equal(t, doc.Format, got.Format)
	assert.True(t, doc.ModTime.Equal(got.ModTime))
}

func TestGetDocumentByPathNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetDocumentByPath(context.Background(), "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveDocumentUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("doc1", "notes.txt")
	require.NoError(t, s.SaveDocument(ctx, doc))

	doc.Fingerprint = "fp-changed"
	doc.Size = 2048
	require.NoError(t, s.SaveDocument(ctx, doc))

	got, err := s.GetDocumentByPath(ctx, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "fp-changed", got.Fingerprint)
	assert.Equal(t, int64(2048), got.Size)

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestListDocumentsOrderedByPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDocument("d2", "b.txt")))
	require.NoError(t, s.SaveDocument(ctx, testDocument("d1", "a.txt")))
	require.NoError(t, s.SaveDocument(ctx, testDocument("d3", "c.txt")))

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a.txt", docs[0].Path)
	assert.Equal(t, "b.txt", docs[1].Path)
	assert.Equal(t, "c.txt", docs[2].Path)
}

func TestFingerprints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDocument("d1", "a.txt")))
	require.NoError(t, s.SaveDocument(ctx, testDocument("d2", "b.txt")))

	fps, err := s.Fingerprints(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"a.txt": "fp-d1",
		"b.txt": "fp-d2",
	}, fps)
}

func TestDeleteDocumentCascadesChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDocument("d1", "a.txt")))
	require.NoError(t, s.SaveDocument(ctx, testDocument("d2", "b.txt")))
	require.NoError(t, s.ReplaceChunks(ctx, "d1", []*ChunkRecord{
		testChunk("c1", "d1", 0),
		testChunk("c2", "d1", 1),
	}))
	require.NoError(t, s.ReplaceChunks(ctx, "d2", []*ChunkRecord{
		testChunk("c3", "d2", 0),
	}))

	require.NoError(t, s.DeleteDocument(ctx, "d1"))

	_, err := s.GetDocumentByPath(ctx, "a.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	// d1's chunks are gone, d2's survive
	_, err = s.GetChunk(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetChunk(ctx, "c3")
	assert.NoError(t, err)

	count, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReplaceChunksReplacesPreviousSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDocument("d1", "a.txt")))
	require.NoError(t, s.ReplaceChunks(ctx, "d1", []*ChunkRecord{
		testChunk("old1", "d1", 0),
		testChunk("old2", "d1", 1),
		testChunk("old3", "d1", 2),
	}))

	require.NoError(t, s.ReplaceChunks(ctx, "d1", []*ChunkRecord{
		testChunk("new1", "d1", 0),
	}))

	ids, err := s.ChunkIDsByDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"new1"}, ids)

	_, err = s.GetChunk(ctx, "old1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceChunksEmptySetClearsDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDocument("d1", "a.txt")))
	require.NoError(t, s.ReplaceChunks(ctx, "d1", []*ChunkRecord{
		testChunk("c1", "d1", 0),
	}))
	require.NoError(t, s.ReplaceChunks(ctx, "d1", nil))

	ids, err := s.ChunkIDsByDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGetChunkRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDocument("d1", "a.txt")))
	chunk := testChunk("c1", "d1", 7)
	chunk.Location = "sheet Budget"
	chunk.Ordinal = 3
	require.NoError(t, s.ReplaceChunks(ctx, "d1", []*ChunkRecord{chunk}))

	got, err := s.GetChunk(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, chunk.Text, got.Text)
	assert.Equal(t, 7, got.Seq)
	assert.Equal(t, "sheet Budget", got.Location)
	assert.Equal(t, 3, got.Ordinal)
	assert.Equal(t, chunk.Embedding, got.Embedding)
}

func TestGetChunksPreservesOrderAndSkipsMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDocument("d1", "a.txt")))
	require.NoError(t, s.ReplaceChunks(ctx, "d1", []*ChunkRecord{
		testChunk("c1", "d1", 0),
		testChunk("c2", "d1", 1),
		testChunk("c3", "d1", 2),
	}))

	chunks, err := s.GetChunks(ctx, []string{"c3", "gone", "c1"})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "c3", chunks[0].ID)
	assert.Equal(t, "c1", chunks[1].ID)
}

func TestGetChunksByDocumentOrderedBySeq(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDocument("d1", "a.txt")))
	require.NoError(t, s.ReplaceChunks(ctx, "d1", []*ChunkRecord{
		testChunk("c2", "d1", 2),
		testChunk("c0", "d1", 0),
		testChunk("c1", "d1", 1),
	}))

	chunks, err := s.GetChunksByDocument(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{chunks[0].Seq, chunks[1].Seq, chunks[2].Seq})
}

func TestAllEmbeddings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDocument("d1", "a.txt")))
	c1 := testChunk("c1", "d1", 0)
	c1.Embedding = []float32{1, 0}
	c2 := testChunk("c2", "d1", 1)
	c2.Embedding = []float32{0, 1}
	require.NoError(t, s.ReplaceChunks(ctx, "d1", []*ChunkRecord{c1, c2}))

	ids, vectors, err := s.AllEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Len(t, vectors, 2)

	byID := map[string][]float32{}
	for i, id := range ids {
		byID[id] = vectors[i]
	}
	assert.Equal(t, []float32{1, 0}, byID["c1"])
	assert.Equal(t, []float32{0, 1}, byID["c2"])
}

func TestState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetState(ctx, "absent")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetState(ctx, "variant", "exact"))
	v, err := s.GetState(ctx, "variant")
	require.NoError(t, err)
	assert.Equal(t, "exact", v)

	require.NoError(t, s.SetState(ctx, "variant", "partitioned"))
	v, err = s.GetState(ctx, "variant")
	require.NoError(t, err)
	assert.Equal(t, "partitioned", v)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.SaveDocument(ctx, testDocument("d1", "a.txt")))
	require.NoError(t, s.ReplaceChunks(ctx, "d1", []*ChunkRecord{testChunk("c1", "d1", 0)}))
	require.NoError(t, s.Close())

	s2, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	got, err := s2.GetDocumentByPath(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "d1", got.ID)

	count, err := s2.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.ListDocuments(context.Background())
	assert.Error(t, err)
}
