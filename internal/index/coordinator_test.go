package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docscout/docscout/internal/embed"
	scouterr "github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/extract"
	"github.com/docscout/docscout/internal/store"
)

func docIDForPath(path string) string {
	return extract.DocumentID(path)
}

// countingEmbedder wraps the static embedder and counts provider calls
// so tests can prove a no-op build never re-embeds.
type countingEmbedder struct {
	inner      embed.Embedder
	batchCalls atomic.Int64
	failAll    atomic.Bool
	blockUntil chan struct{}
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{inner: embed.NewStaticEmbedder()}
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.inner.Embed(ctx, text)
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batchCalls.Add(1)
	if e.blockUntil != nil {
		select {
		case <-e.blockUntil:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.failAll.Load() {
		return nil, scouterr.New(scouterr.ErrCodeEmbedBatchFailed, "provider down", nil)
	}
	return e.inner.EmbedBatch(ctx, texts)
}

func (e *countingEmbedder) Dimensions() int           { return e.inner.Dimensions() }
func (e *countingEmbedder) ModelName() string         { return "counting-test" }
func (e *countingEmbedder) Available(_ context.Context) bool { return true }
func (e *countingEmbedder) Close() error              { return e.inner.Close() }

type testEnv struct {
	root     string
	dataDir  string
	cfg      Config
	store    *store.SQLiteStore
	embedder *countingEmbedder
	coord    *Coordinator
}

func newTestEnv(t *testing.T, threshold int) *testEnv {
	t.Helper()

	root := t.TempDir()
	dataDir := filepath.Join(root, ".docscout")

	st, err := store.NewSQLiteStore(filepath.Join(dataDir, "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := Config{
		RootDir:            root,
		DataDir:            dataDir,
		ChunkSize:          10,
		BatchSize:          8,
		Workers:            2,
		PartitionThreshold: threshold,
		NList:              4,
		NProbe:             2,
	}
	embedder := newCountingEmbedder()
	coord := NewCoordinator(cfg, st, embedder)

	return &testEnv{root: root, dataDir: dataDir, cfg: cfg, store: st, embedder: embedder, coord: coord}
}

// restart builds a fresh coordinator over the same data directory and
// store, the way a new process starts up.
func (env *testEnv) restart(t *testing.T) *Coordinator {
	t.Helper()
	coord := NewCoordinator(env.cfg, env.store, env.embedder)
	require.NoError(t, coord.Open(context.Background()))
	return coord
}

func (env *testEnv) writeDoc(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(env.root, name), []byte(content), 0o644))
}

func (env *testEnv) removeDoc(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(env.root, name)))
}

func TestBuildIndexesNewDocuments(t *testing.T) {
	env := newTestEnv(t, 50000)
	ctx := context.Background()

	env.writeDoc(t, "biology.txt", "the cell membrane controls transport of molecules")
	env.writeDoc(t, "transit.txt", "downtown parking garages charge hourly rates")

	summary, err := env.coord.Build(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Added)
	assert.Equal(t, 0, summary.Modified)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, store.VariantExact, summary.Variant)
	assert.Equal(t, 2, summary.ChunkCount)
	assert.True(t, env.coord.Handle().Ready())
	assert.Equal(t, 2, env.coord.Handle().Snapshot().Count())
	assert.Equal(t, PhaseIdle, env.coord.Phase())
}

func TestSecondBuildIsNoOp(t *testing.T) {
	env := newTestEnv(t, 50000)
	ctx := context.Background()

	env.writeDoc(t, "a.txt", "first document body text")
	env.writeDoc(t, "b.txt", "second document body text")

	_, err := env.coord.Build(ctx, false)
	require.NoError(t, err)
	callsAfterFirst := env.embedder.batchCalls.Load()
	require.Greater(t, callsAfterFirst, int64(0))

	summary, err := env.coord.Build(ctx, false)
	require.NoError(t, err)

	// No changes: nothing re-embedded, same corpus
	assert.Equal(t, callsAfterFirst, env.embedder.batchCalls.Load())
	assert.Equal(t, 0, summary.Added)
	assert.Equal(t, 0, summary.Modified)
	assert.Equal(t, 0, summary.Removed)
	assert.Equal(t, 2, summary.ChunkCount)
}

func TestBuildDetectsModificationAndRemoval(t *testing.T) {
	env := newTestEnv(t, 50000)
	ctx := context.Background()

	env.writeDoc(t, "keep.txt", "unchanged content")
	env.writeDoc(t, "edit.txt", "original content")
	env.writeDoc(t, "drop.txt", "doomed content")

	_, err := env.coord.Build(ctx, false)
	require.NoError(t, err)

	env.writeDoc(t, "edit.txt", "rewritten content with more words than before")
	env.removeDoc(t, "drop.txt")

	summary, err := env.coord.Build(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Added)
	assert.Equal(t, 1, summary.Modified)
	assert.Equal(t, 1, summary.Removed)

	// Removed document is fully purged
	_, err = env.store.GetDocumentByPath(ctx, "drop.txt")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 2, env.coord.Handle().Snapshot().Count())
}

func TestBuildIsolatesFailedDocuments(t *testing.T) {
	env := newTestEnv(t, 50000)
	ctx := context.Background()

	env.writeDoc(t, "good.txt", "healthy document text")
	// Legacy binary Office formats fail extraction deterministically
	oleMagic := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0, 0}
	require.NoError(t, os.WriteFile(filepath.Join(env.root, "legacy.doc"), oleMagic, 0o644))

	summary, err := env.coord.Build(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"legacy.doc"}, summary.FailedDocs)

	// The good document is searchable despite the failure
	assert.Equal(t, 1, env.coord.Handle().Snapshot().Count())

	// Failed document is retried on the next cycle, not silently dropped
	summary, err = env.coord.Build(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
}

func TestBuildKeepsPreviousEntriesWhenEmbeddingFails(t *testing.T) {
	env := newTestEnv(t, 50000)
	ctx := context.Background()

	env.writeDoc(t, "doc.txt", "original words")
	_, err := env.coord.Build(ctx, false)
	require.NoError(t, err)

	env.writeDoc(t, "doc.txt", "changed words")
	env.embedder.failAll.Store(true)

	summary, err := env.coord.Build(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	// Previous chunk set still serves
	chunks, err := env.store.GetChunksByDocument(ctx, docIDForPath("doc.txt"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "original words", chunks[0].Text)
	assert.Equal(t, 1, env.coord.Handle().Snapshot().Count())
}

func TestVariantSwitchAcrossThreshold(t *testing.T) {
	env := newTestEnv(t, 6)
	ctx := context.Background()

	env.writeDoc(t, "small.txt", "tiny corpus")
	summary, err := env.coord.Build(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, store.VariantExact, summary.Variant)

	oldSnapshot := env.coord.Handle().Snapshot()

	// Push the chunk count past the threshold (10-word windows)
	for i := 0; i < 8; i++ {
		env.writeDoc(t, fmt.Sprintf("doc%d.txt", i),
			"alpha beta gamma delta epsilon zeta eta theta iota kappa")
	}

	summary, err = env.coord.Build(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, store.VariantPartitioned, summary.Variant)
	assert.GreaterOrEqual(t, summary.ChunkCount, 6)

	// The pre-rebuild snapshot still answers queries
	q, err := env.embedder.Embed(ctx, "tiny corpus")
	require.NoError(t, err)
	results, err := oldSnapshot.Search(ctx, q, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// The serving snapshot is the new structure
	assert.Equal(t, store.VariantPartitioned, env.coord.Handle().Snapshot().Variant())

	// Shrinking back below the threshold switches the variant down
	for i := 0; i < 8; i++ {
		env.removeDoc(t, fmt.Sprintf("doc%d.txt", i))
	}
	summary, err = env.coord.Build(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, store.VariantExact, summary.Variant)
}

func TestBuildRejectsConcurrentBuild(t *testing.T) {
	env := newTestEnv(t, 50000)
	ctx := context.Background()

	env.writeDoc(t, "doc.txt", "some words to embed")
	env.embedder.blockUntil = make(chan struct{})

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := env.coord.Build(ctx, false)
		done <- err
	}()
	<-started

	// Wait until the first build holds the lock inside embedding
	require.Eventually(t, func() bool {
		return env.embedder.batchCalls.Load() > 0
	}, 5*time.Second, 10*time.Millisecond)

	_, err := env.coord.Build(ctx, false)
	assert.ErrorIs(t, err, scouterr.ErrBuildInProgress)

	close(env.embedder.blockUntil)
	require.NoError(t, <-done)
}

func TestBuildHonorsCancellation(t *testing.T) {
	env := newTestEnv(t, 50000)

	for i := 0; i < 5; i++ {
		env.writeDoc(t, fmt.Sprintf("doc%d.txt", i), "words to embed here")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.coord.Build(ctx, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseIdle, env.coord.Phase())
}

func TestForceRebuildsEverything(t *testing.T) {
	env := newTestEnv(t, 50000)
	ctx := context.Background()

	env.writeDoc(t, "a.txt", "alpha words")
	env.writeDoc(t, "b.txt", "beta words")

	_, err := env.coord.Build(ctx, false)
	require.NoError(t, err)
	callsAfterFirst := env.embedder.batchCalls.Load()

	summary, err := env.coord.Build(ctx, true)
	require.NoError(t, err)

	// Everything re-embedded despite unchanged fingerprints
	assert.Greater(t, env.embedder.batchCalls.Load(), callsAfterFirst)
	assert.Equal(t, 2, summary.Modified)
	assert.Equal(t, 2, summary.ChunkCount)
}

func TestOpenRestoresPersistedIndex(t *testing.T) {
	env := newTestEnv(t, 50000)
	ctx := context.Background()

	env.writeDoc(t, "doc.txt", "persistent words")
	_, err := env.coord.Build(ctx, false)
	require.NoError(t, err)

	// Fresh coordinator over the same data dir
	coord2 := NewCoordinator(env.coord.config, env.store, env.embedder)
	require.False(t, coord2.Handle().Ready())
	require.NoError(t, coord2.Open(ctx))

	assert.True(t, coord2.Handle().Ready())
	assert.Equal(t, 1, coord2.Handle().Snapshot().Count())
}

func TestOpenRejectsTamperedIndexFile(t *testing.T) {
	env := newTestEnv(t, 50000)
	ctx := context.Background()

	env.writeDoc(t, "doc.txt", "words before tampering")
	_, err := env.coord.Build(ctx, false)
	require.NoError(t, err)

	indexPath := filepath.Join(env.dataDir, "vectors.idx")
	require.NoError(t, os.WriteFile(indexPath, []byte("garbage"), 0o644))

	coord2 := NewCoordinator(env.coord.config, env.store, env.embedder)
	require.NoError(t, coord2.Open(ctx))
	assert.False(t, coord2.Handle().Ready())

	// The next build recovers from the embeddings in the store,
	// without calling the provider again
	calls := env.embedder.batchCalls.Load()
	summary, err := coord2.Build(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, calls, env.embedder.batchCalls.Load())
	assert.Equal(t, 1, summary.ChunkCount)
	assert.True(t, coord2.Handle().Ready())
}

func TestManifestWrittenLast(t *testing.T) {
	env := newTestEnv(t, 50000)
	ctx := context.Background()

	env.writeDoc(t, "doc.txt", "manifest check words")
	_, err := env.coord.Build(ctx, false)
	require.NoError(t, err)

	m, err := env.coord.Manifest()
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, ManifestVersion, m.Version)
	assert.Equal(t, 1, m.ChunkCount)
	assert.Equal(t, store.VariantExact, m.Variant)
	assert.Equal(t, "counting-test", m.Model)
	assert.Equal(t, env.embedder.Dimensions(), m.Dimensions)
	assert.Contains(t, m.Fingerprints, "doc.txt")
	require.NoError(t, VerifyIndexFile(filepath.Join(env.dataDir, "vectors.idx"), m.IndexHash))
}

func TestDimensionChangeRequiresForce(t *testing.T) {
	env := newTestEnv(t, 50000)
	ctx := context.Background()

	env.writeDoc(t, "doc.txt", "dimension sensitive words")
	_, err := env.coord.Build(ctx, false)
	require.NoError(t, err)

	// Simulate a provider swap by rewriting the manifest dimensions
	m, err := env.coord.Manifest()
	require.NoError(t, err)
	m.Dimensions = m.Dimensions * 2
	require.NoError(t, SaveManifest(filepath.Join(env.dataDir, "manifest.json"), m))

	_, err = env.coord.Build(ctx, false)
	require.Error(t, err)
	assert.Equal(t, scouterr.ErrCodeDimensionMismatch, scouterr.GetCode(err))
	assert.True(t, scouterr.IsFatal(err))

	// --force recovers
	summary, err := env.coord.Build(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ChunkCount)
}

func TestRestartAfterInterruptedCycleRebuildsFromStore(t *testing.T) {
	env := newTestEnv(t, 50000)
	ctx := context.Background()

	env.writeDoc(t, "first.txt", "solar panels convert sunlight into electricity")
	_, err := env.coord.Build(ctx, false)
	require.NoError(t, err)

	// Block the index save so the next cycle dies after the second
	// document's metadata has committed but before vectors.idx and the
	// manifest are written.
	blocker := filepath.Join(env.dataDir, "vectors.idx.tmp")
	require.NoError(t, os.Mkdir(blocker, 0o755))

	env.writeDoc(t, "second.txt", "wind turbines generate power from moving air")
	_, err = env.coord.Build(ctx, false)
	require.Error(t, err)
	require.NoError(t, os.Remove(blocker))

	// The store committed both documents; the persisted index and
	// manifest still describe only the first.
	count, err := env.store.CountChunks(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	m, err := env.coord.Manifest()
	require.NoError(t, err)
	require.Equal(t, 1, m.ChunkCount)
	require.NotContains(t, m.Fingerprints, "second.txt")

	// Restart: Open reconciles the snapshot against the store without
	// calling the provider.
	calls := env.embedder.batchCalls.Load()
	coord2 := env.restart(t)
	require.True(t, coord2.Handle().Ready())
	assert.Equal(t, 2, coord2.Handle().Snapshot().Count())
	assert.Equal(t, calls, env.embedder.batchCalls.Load())

	// The half-committed document is retrievable from the snapshot
	q, err := env.embedder.Embed(ctx, "wind turbines generate power from moving air")
	require.NoError(t, err)
	results, err := coord2.Handle().Snapshot().Search(ctx, q, 2)
	require.NoError(t, err)
	found := false
	for _, r := range results {
		chunk, err := env.store.GetChunk(ctx, r.ID)
		require.NoError(t, err)
		if chunk.DocumentID == docIDForPath("second.txt") {
			found = true
		}
	}
	assert.True(t, found, "second document should be retrievable after restart")

	// The next build persists the reconciled state, still without
	// re-embedding anything.
	summary, err := coord2.Build(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Added)
	assert.Equal(t, 0, summary.Modified)
	assert.Equal(t, 2, summary.ChunkCount)
	assert.Equal(t, calls, env.embedder.batchCalls.Load())

	m, err = coord2.Manifest()
	require.NoError(t, err)
	assert.Equal(t, 2, m.ChunkCount)
	assert.Contains(t, m.Fingerprints, "second.txt")

	count, err = env.store.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, count, coord2.Handle().Snapshot().Count())
}

func TestEmptyFolderBuildsEmptyIndex(t *testing.T) {
	env := newTestEnv(t, 50000)

	summary, err := env.coord.Build(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.ChunkCount)
	assert.True(t, env.coord.Handle().Ready())
	assert.Equal(t, 0, env.coord.Handle().Snapshot().Count())
}
