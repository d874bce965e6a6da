// Package index coordinates incremental build cycles: change
// detection, extraction, embedding, metadata updates, and the atomic
// swap of the serving vector index.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/embed"
	scouterr "github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/extract"
	"github.com/docscout/docscout/internal/scanner"
	"github.com/docscout/docscout/internal/store"
)

// Phase is the coordinator's current position in a build cycle,
// exposed for status reporting.
type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhaseDetecting  Phase = "DETECTING"
	PhaseExtracting Phase = "EXTRACTING"
	PhaseEmbedding  Phase = "EMBEDDING"
	PhaseUpdating   Phase = "UPDATING"
	PhaseSwapping   Phase = "SWAPPING"
)

// ProgressEvent reports build progress to an optional observer.
type ProgressEvent struct {
	Phase   Phase
	Current int
	Total   int
	Path    string
}

// BuildSummary describes one completed build cycle.
type BuildSummary struct {
	Added      int
	Modified   int
	Removed    int
	Failed     int
	FailedDocs []string
	ChunkCount int
	Variant    store.Variant
	Duration   time.Duration
}

// Config carries the build-relevant settings for a Coordinator.
type Config struct {
	RootDir         string
	DataDir         string
	ExcludePatterns []string
	MaxFileSize     int64

	ChunkSize          int
	BatchSize          int
	Workers            int
	BatchTimeout       time.Duration
	PartitionThreshold int
	NList              int
	NProbe             int
}

// ConfigFrom derives a coordinator Config from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		RootDir:            cfg.Paths.Root,
		DataDir:            cfg.DataDir(),
		ExcludePatterns:    cfg.Paths.Exclude,
		MaxFileSize:        int64(cfg.Indexing.MaxFileSizeMB) * 1024 * 1024,
		ChunkSize:          cfg.Indexing.ChunkSize,
		BatchSize:          cfg.Embeddings.BatchSize,
		Workers:            cfg.Indexing.Workers,
		BatchTimeout:       cfg.Embeddings.BatchTimeout,
		PartitionThreshold: cfg.Indexing.PartitionThreshold,
		NList:              cfg.Indexing.NList,
		NProbe:             cfg.Indexing.NProbe,
	}
}

// Coordinator runs build cycles over a document folder. One build at a
// time: concurrent callers get ErrBuildInProgress, and a file lock on
// the data directory extends that guarantee across processes. Queries
// keep serving from the previous index snapshot until the swap.
type Coordinator struct {
	config   Config
	store    *store.SQLiteStore
	embedder embed.Embedder
	handle   *Handle
	fileLock *BuildLock

	buildMu sync.Mutex
	phase   atomic.Value

	// OnProgress, when set before the first Build, receives progress
	// events from the build goroutine.
	OnProgress func(ProgressEvent)
}

// NewCoordinator creates a Coordinator. Call Open to restore a
// previously persisted index before serving queries.
func NewCoordinator(cfg Config, st *store.SQLiteStore, embedder embed.Embedder) *Coordinator {
	c := &Coordinator{
		config:   cfg,
		store:    st,
		embedder: embedder,
		handle:   NewHandle(),
		fileLock: NewBuildLock(cfg.DataDir),
	}
	c.phase.Store(PhaseIdle)
	return c
}

// Handle returns the serving index handle for the search engine.
func (c *Coordinator) Handle() *Handle {
	return c.handle
}

// Phase returns the coordinator's current build phase.
func (c *Coordinator) Phase() Phase {
	return c.phase.Load().(Phase)
}

// Manifest loads the manifest of the last successful build, or nil
// when no build has completed.
func (c *Coordinator) Manifest() (*Manifest, error) {
	return LoadManifest(c.manifestPath())
}

func (c *Coordinator) indexPath() string {
	return filepath.Join(c.config.DataDir, "vectors.idx")
}

func (c *Coordinator) manifestPath() string {
	return filepath.Join(c.config.DataDir, "manifest.json")
}

func (c *Coordinator) setPhase(p Phase) {
	c.phase.Store(p)
}

func (c *Coordinator) reportProgress(ev ProgressEvent) {
	if c.OnProgress != nil {
		c.OnProgress(ev)
	}
}

func (c *Coordinator) workers() int {
	if c.config.Workers > 0 {
		return c.config.Workers
	}
	return 4
}

func (c *Coordinator) batchSize() int {
	if c.config.BatchSize > 0 {
		return c.config.BatchSize
	}
	return embed.DefaultBatchSize
}

// Open restores the persisted vector index from the last successful
// build. A missing manifest is a fresh start; a hash mismatch or load
// failure leaves the handle empty so the next Build rebuilds from the
// embeddings persisted in the metadata store.
func (c *Coordinator) Open(ctx context.Context) error {
	manifest, err := LoadManifest(c.manifestPath())
	if err != nil {
		return err
	}
	if manifest == nil {
		return nil
	}

	if err := VerifyIndexFile(c.indexPath(), manifest.IndexHash); err != nil {
		slog.Warn("vector index failed integrity check, rebuild required",
			slog.String("path", c.indexPath()),
			slog.String("error", err.Error()))
		return nil
	}

	idx, err := store.OpenIndex(c.indexPath())
	if err != nil {
		slog.Warn("failed to load vector index, rebuild required",
			slog.String("path", c.indexPath()),
			slog.String("error", err.Error()))
		return nil
	}

	// A cycle interrupted after a document's metadata committed but
	// before the index and manifest were written leaves the store ahead
	// of the persisted index. The store is the source of truth, so
	// serve a snapshot rebuilt from its persisted embeddings instead of
	// the stale file; the next Build persists the reconciled state.
	storeFingerprints, err := c.store.Fingerprints(ctx)
	if err != nil {
		return err
	}
	if !maps.Equal(manifest.Fingerprints, storeFingerprints) {
		slog.Warn("metadata store and manifest disagree, rebuilding snapshot from store",
			slog.Int("manifest_docs", len(manifest.Fingerprints)),
			slog.Int("store_docs", len(storeFingerprints)))

		count, err := c.store.CountChunks(ctx)
		if err != nil {
			return err
		}
		rebuilt, err := c.rebuildIndex(ctx, store.ChooseVariant(count, c.config.PartitionThreshold), manifest.Dimensions)
		if err != nil {
			slog.Warn("failed to rebuild snapshot from store, rebuild required",
				slog.String("error", err.Error()))
			return nil
		}
		idx = rebuilt
	}

	c.handle.Swap(idx)
	slog.Info("vector index restored",
		slog.String("variant", string(idx.Variant())),
		slog.Int("vectors", idx.Count()),
		slog.Int("dimensions", idx.Dimensions()))
	return nil
}

// docWork is one document moving through the build pipeline.
type docWork struct {
	cand    Candidate
	docID   string
	isNew   bool
	chunks  []extract.Chunk
	vectors [][]float32
	failed  bool
}

// Build runs one build cycle: detect changes, extract and embed
// changed documents, update the metadata store and vector index, and
// swap the serving snapshot. force re-indexes every document and
// rebuilds the index structure from scratch.
func (c *Coordinator) Build(ctx context.Context, force bool) (*BuildSummary, error) {
	if !c.buildMu.TryLock() {
		return nil, scouterr.ErrBuildInProgress
	}
	defer c.buildMu.Unlock()

	acquired, err := c.fileLock.TryLock()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, scouterr.New(scouterr.ErrCodeBuildInProgress,
			"another process is building this index", nil).
			WithDetail("lock", c.fileLock.Path())
	}
	defer func() { _ = c.fileLock.Unlock() }()
	defer c.setPhase(PhaseIdle)

	start := time.Now()
	dims := c.embedder.Dimensions()

	manifest, err := LoadManifest(c.manifestPath())
	if err != nil {
		return nil, err
	}
	if manifest != nil && manifest.Dimensions != dims && !force {
		return nil, scouterr.DimensionMismatchError(manifest.Dimensions, dims)
	}

	// DETECTING: scan the folder and diff fingerprints against the
	// metadata store. The store, not the manifest, is the source of
	// truth: documents that failed last cycle keep their old
	// fingerprint there and are retried automatically.
	c.setPhase(PhaseDetecting)

	files, err := scanner.New().ScanAll(ctx, &scanner.ScanOptions{
		RootDir:         c.config.RootDir,
		ExcludePatterns: c.config.ExcludePatterns,
		MaxFileSize:     c.config.MaxFileSize,
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build canceled during scan: %w", err)
	}

	candidates := make([]Candidate, 0, len(files))
	for _, f := range files {
		fp, err := scanner.Fingerprint(f.AbsPath)
		if err != nil {
			slog.Warn("failed to fingerprint file, skipping",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			continue
		}
		candidates = append(candidates, Candidate{File: f, Fingerprint: fp})
	}

	previous, err := c.store.Fingerprints(ctx)
	if err != nil {
		return nil, err
	}

	changes := DetectChanges(candidates, previous)
	if force {
		changes = forceAll(candidates, previous)
	}

	current := c.handle.Snapshot()
	fullRebuild := force || current == nil || current.Dimensions() != dims

	// The manifest records what the persisted index reflects. If it
	// disagrees with the store's fingerprints, a previous cycle was
	// interrupted between the metadata commit and the index write;
	// rebuild from the persisted embeddings so the two agree again.
	if !fullRebuild && manifest != nil && !maps.Equal(manifest.Fingerprints, previous) {
		slog.Warn("metadata store and manifest disagree, forcing index rebuild")
		fullRebuild = true
	}

	slog.Info("change_detection_complete",
		slog.Int("added", len(changes.Added)),
		slog.Int("modified", len(changes.Modified)),
		slog.Int("removed", len(changes.Removed)),
		slog.Int("unchanged", changes.Unchanged),
		slog.Bool("full_rebuild", fullRebuild))

	if changes.Empty() && !fullRebuild {
		count, err := c.store.CountChunks(ctx)
		if err != nil {
			return nil, err
		}
		return &BuildSummary{
			ChunkCount: count,
			Variant:    current.Variant(),
			Duration:   time.Since(start),
		}, nil
	}

	// EXTRACTING: parse changed documents into chunks. A document
	// that fails to parse is recorded and skipped; its previous index
	// entries stay in place.
	c.setPhase(PhaseExtracting)

	var pending []*docWork
	var failedDocs []string
	chunker := extract.NewChunker(c.config.ChunkSize)

	work := make([]*docWork, 0, len(changes.Added)+len(changes.Modified))
	for _, cand := range changes.Added {
		work = append(work, &docWork{cand: cand, isNew: true})
	}
	for _, cand := range changes.Modified {
		work = append(work, &docWork{cand: cand})
	}

	for i, w := range work {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build canceled during extraction: %w", err)
		}
		c.reportProgress(ProgressEvent{
			Phase: PhaseExtracting, Current: i + 1, Total: len(work), Path: w.cand.File.Path,
		})

		w.docID = extract.DocumentID(w.cand.File.Path)
		parser, err := extract.ParserFor(w.cand.File.AbsPath)
		if err == nil {
			var units []extract.Unit
			units, err = parser.Parse(ctx, w.cand.File.AbsPath)
			if err == nil {
				w.chunks = chunker.Split(w.docID, units)
				pending = append(pending, w)
				continue
			}
		}

		slog.Warn("document extraction failed",
			slog.String("path", w.cand.File.Path),
			slog.String("error", err.Error()))
		w.failed = true
		failedDocs = append(failedDocs, w.cand.File.Path)
	}

	// EMBEDDING: embed each document's chunks in bounded-parallel
	// batches. Retry exhaustion marks the document failed; the cycle
	// continues with the rest.
	c.setPhase(PhaseEmbedding)

	for i, w := range pending {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build canceled during embedding: %w", err)
		}
		c.reportProgress(ProgressEvent{
			Phase: PhaseEmbedding, Current: i + 1, Total: len(pending), Path: w.cand.File.Path,
		})

		vectors, err := c.embedChunks(ctx, w.chunks)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("build canceled during embedding: %w", ctx.Err())
			}
			slog.Warn("document embedding failed",
				slog.String("path", w.cand.File.Path),
				slog.Int("chunks", len(w.chunks)),
				slog.String("error", err.Error()))
			w.failed = true
			failedDocs = append(failedDocs, w.cand.File.Path)
			continue
		}
		w.vectors = vectors
	}

	// UPDATING: per document, one metadata transaction replaces the
	// chunk set, then the vector index is updated. On a full rebuild
	// the index work is deferred to the rebuild below.
	c.setPhase(PhaseUpdating)

	var target store.VectorIndex
	if fullRebuild {
		target, err = store.NewFlatIndex(c.indexConfig(dims))
		if err != nil {
			return nil, err
		}
	} else {
		target = current
	}

	var added, modified int
	for _, w := range pending {
		if w.failed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build canceled during update: %w", err)
		}

		if err := c.applyDocument(ctx, w, target, !fullRebuild); err != nil {
			return nil, err
		}
		if w.isNew {
			added++
		} else {
			modified++
		}
	}

	removed, err := c.purgeRemoved(ctx, changes.Removed, target, !fullRebuild)
	if err != nil {
		return nil, err
	}

	// Variant policy is evaluated once per cycle, on the post-update
	// count. A switch in either direction rebuilds off to the side
	// from the embeddings persisted in the store, never by re-calling
	// the provider.
	postCount, err := c.store.CountChunks(ctx)
	if err != nil {
		return nil, err
	}
	want := store.ChooseVariant(postCount, c.config.PartitionThreshold)

	if fullRebuild || want != target.Variant() {
		rebuilt, err := c.rebuildIndex(ctx, want, dims)
		if err != nil {
			return nil, err
		}
		target = rebuilt
	}

	// SWAPPING: persist the index, record its hash in the manifest
	// (the last write of the cycle), then install the new snapshot.
	c.setPhase(PhaseSwapping)

	if err := target.Save(c.indexPath()); err != nil {
		return nil, err
	}
	indexHash, err := HashIndexFile(c.indexPath())
	if err != nil {
		return nil, err
	}

	fingerprints, err := c.store.Fingerprints(ctx)
	if err != nil {
		return nil, err
	}
	if err := SaveManifest(c.manifestPath(), &Manifest{
		Version:      ManifestVersion,
		Fingerprints: fingerprints,
		ChunkCount:   postCount,
		Dimensions:   dims,
		Variant:      target.Variant(),
		Model:        c.embedder.ModelName(),
		IndexHash:    indexHash,
		BuiltAt:      time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	// The previous snapshot is left open: in-flight queries may still
	// hold it, and it owns no OS resources.
	c.handle.Swap(target)

	summary := &BuildSummary{
		Added:      added,
		Modified:   modified,
		Removed:    removed,
		Failed:     len(failedDocs),
		FailedDocs: failedDocs,
		ChunkCount: postCount,
		Variant:    target.Variant(),
		Duration:   time.Since(start),
	}

	slog.Info("build_complete",
		slog.Int("added", summary.Added),
		slog.Int("modified", summary.Modified),
		slog.Int("removed", summary.Removed),
		slog.Int("failed", summary.Failed),
		slog.Int("chunks", summary.ChunkCount),
		slog.String("variant", string(summary.Variant)),
		slog.Int64("duration_ms", summary.Duration.Milliseconds()))

	return summary, nil
}

// forceAll treats every scanned file as changed while keeping the
// removal set from the regular diff.
func forceAll(candidates []Candidate, previous map[string]string) ChangeSet {
	cs := DetectChanges(candidates, previous)
	forced := ChangeSet{Removed: cs.Removed}
	for _, cand := range candidates {
		if _, existed := previous[cand.File.Path]; existed {
			forced.Modified = append(forced.Modified, cand)
		} else {
			forced.Added = append(forced.Added, cand)
		}
	}
	return forced
}

// embedChunks embeds one document's chunks in bounded-parallel batches
// with a per-batch deadline. Provider-level retries happen inside the
// embedder; an error here means retries were exhausted.
func (c *Coordinator) embedChunks(ctx context.Context, chunks []extract.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(chunks))
	batchSize := c.batchSize()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())

	for batchStart := 0; batchStart < len(chunks); batchStart += batchSize {
		batchEnd := batchStart + batchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		start, end := batchStart, batchEnd

		g.Go(func() error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = chunks[i].Text
			}

			bctx := gctx
			if c.config.BatchTimeout > 0 {
				var cancel context.CancelFunc
				bctx, cancel = context.WithTimeout(gctx, c.config.BatchTimeout)
				defer cancel()
			}

			batch, err := c.embedder.EmbedBatch(bctx, texts)
			if err != nil {
				return fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
			}
			for i, v := range batch {
				vectors[start+i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// applyDocument writes one document's chunk set in a single metadata
// transaction and, in incremental mode, mirrors the change into the
// vector index.
func (c *Coordinator) applyDocument(ctx context.Context, w *docWork, target store.VectorIndex, incremental bool) error {
	oldIDs, err := c.store.ChunkIDsByDocument(ctx, w.docID)
	if err != nil {
		return err
	}

	records := make([]*store.ChunkRecord, len(w.chunks))
	ids := make([]string, len(w.chunks))
	for i, ch := range w.chunks {
		records[i] = &store.ChunkRecord{
			ID:         ch.ID,
			DocumentID: ch.DocumentID,
			Seq:        ch.Seq,
			Location:   ch.Location,
			Ordinal:    ch.Ordinal,
			Text:       ch.Text,
			WordCount:  ch.WordCount,
			Embedding:  w.vectors[i],
		}
		ids[i] = ch.ID
	}

	if err := c.store.SaveDocument(ctx, &store.DocumentRecord{
		ID:          w.docID,
		Path:        w.cand.File.Path,
		Fingerprint: w.cand.Fingerprint,
		Size:        w.cand.File.Size,
		ModTime:     w.cand.File.ModTime,
		Format:      string(w.cand.File.Format),
		IndexedAt:   time.Now().UTC(),
	}); err != nil {
		return err
	}
	if err := c.store.ReplaceChunks(ctx, w.docID, records); err != nil {
		return err
	}

	if incremental {
		if err := target.Delete(ctx, oldIDs); err != nil {
			return err
		}
		if len(ids) > 0 {
			if err := target.Add(ctx, ids, w.vectors); err != nil {
				return err
			}
		}
	}
	return nil
}

// purgeRemoved deletes documents that vanished from the folder, chunk
// rows cascading in the store and vectors removed from the index.
func (c *Coordinator) purgeRemoved(ctx context.Context, paths []string, target store.VectorIndex, incremental bool) (int, error) {
	removed := 0
	for _, path := range paths {
		doc, err := c.store.GetDocumentByPath(ctx, path)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}

		chunkIDs, err := c.store.ChunkIDsByDocument(ctx, doc.ID)
		if err != nil {
			return removed, err
		}
		if incremental {
			if err := target.Delete(ctx, chunkIDs); err != nil {
				return removed, err
			}
		}
		if err := c.store.DeleteDocument(ctx, doc.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// rebuildIndex builds a fresh index of the wanted variant from the
// embeddings persisted in the metadata store.
func (c *Coordinator) rebuildIndex(ctx context.Context, want store.Variant, dims int) (store.VectorIndex, error) {
	ids, vectors, err := c.store.AllEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	cfg := c.indexConfig(dims)

	var idx store.VectorIndex
	if want == store.VariantPartitioned && len(vectors) > 0 {
		idx, err = store.NewIVFIndex(cfg, vectors)
	} else {
		idx, err = store.NewFlatIndex(cfg)
	}
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		if err := idx.Add(ctx, ids, vectors); err != nil {
			return nil, err
		}
	}

	slog.Info("index_rebuilt",
		slog.String("variant", string(idx.Variant())),
		slog.Int("vectors", idx.Count()))
	return idx, nil
}

func (c *Coordinator) indexConfig(dims int) store.VectorIndexConfig {
	return store.VectorIndexConfig{
		Dimensions: dims,
		Metric:     "cos",
		NList:      c.config.NList,
		NProbe:     c.config.NProbe,
	}
}
