package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/docscout/docscout/internal/embed"
	scouterr "github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/index"
	"github.com/docscout/docscout/internal/store"
)

// Engine executes semantic queries. It snapshots the serving index
// once per query, so results stay internally consistent even while a
// build swaps in a replacement.
type Engine struct {
	store    *store.SQLiteStore
	embedder embed.Embedder
	handle   *index.Handle
}

// NewEngine creates a search engine over the given stores.
func NewEngine(st *store.SQLiteStore, embedder embed.Embedder, handle *index.Handle) *Engine {
	return &Engine{
		store:    st,
		embedder: embedder,
		handle:   handle,
	}
}

// Search embeds the query, runs vector search against the current
// snapshot, and resolves hits to chunks. Results are ordered by score
// descending; ties keep the index return order. Hits whose chunk row
// has vanished mid-swap are dropped silently.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, scouterr.New(scouterr.ErrCodeInvalidInput, "query must not be empty", nil)
	}
	if opts.TopK <= 0 {
		return nil, scouterr.New(scouterr.ErrCodeInvalidInput, "top_k must be positive", nil)
	}

	snapshot := e.handle.Snapshot()
	if snapshot == nil {
		return nil, scouterr.ErrIndexNotReady
	}

	// A query embedding failure surfaces immediately; silently
	// retrying here would hide provider outages from the caller.
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, scouterr.New(scouterr.ErrCodeEmbedderUnavailable,
			"failed to embed query", err)
	}

	// With a document filter, fetch the whole corpus so the filter
	// cannot starve the result set below TopK.
	k := opts.TopK
	if len(opts.Documents) > 0 {
		if count := snapshot.Count(); count > k {
			k = count
		}
	}
	hits, err := snapshot.Search(ctx, queryVec, k)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []*Result{}, nil
	}

	results, err := e.resolve(ctx, query, hits, opts)
	if err != nil {
		return nil, err
	}

	slog.Debug("search_complete",
		slog.String("query", query),
		slog.Int("hits", len(hits)),
		slog.Int("results", len(results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return results, nil
}

// resolve fetches chunk rows for the hits in one batch, applies the
// document filter, and assembles ranked results.
func (e *Engine) resolve(ctx context.Context, query string, hits []*store.VectorResult, opts Options) ([]*Result, error) {
	ids := make([]string, len(hits))
	scoreByID := make(map[string]float32, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scoreByID[h.ID] = h.Score
	}

	chunks, err := e.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	pathByDoc, err := e.documentPaths(ctx)
	if err != nil {
		return nil, err
	}

	var filter map[string]bool
	if len(opts.Documents) > 0 {
		filter = make(map[string]bool, len(opts.Documents))
		for _, p := range opts.Documents {
			filter[p] = true
		}
	}

	terms := strings.Fields(strings.ToLower(query))

	// GetChunks preserves hit order and omits stale ids, so walking
	// the chunk list keeps the ranking.
	results := make([]*Result, 0, len(chunks))
	for _, chunk := range chunks {
		path, ok := pathByDoc[chunk.DocumentID]
		if !ok {
			continue // document row removed mid-swap
		}
		if filter != nil && !filter[path] {
			continue
		}

		results = append(results, &Result{
			DocumentID: chunk.DocumentID,
			Path:       path,
			Location:   chunk.Location,
			Ordinal:    chunk.Ordinal,
			Text:       chunk.Text,
			Snippet:    buildSnippet(chunk.Text, terms),
			Score:      scoreByID[chunk.ID],
		})
		if len(results) == opts.TopK {
			break
		}
	}

	return results, nil
}

// documentPaths maps document IDs to root-relative paths.
func (e *Engine) documentPaths(ctx context.Context) (map[string]string, error) {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]string, len(docs))
	for _, d := range docs {
		paths[d.ID] = d.Path
	}
	return paths, nil
}
