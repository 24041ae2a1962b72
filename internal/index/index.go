// Package index wraps the persistent vector index the retriever searches.
package index

import (
	"context"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Document is one retrievable passage. Documents are immutable once indexed.
type Document struct {
	ID      string
	Content string
}

// SearchResult is a document matched by a similarity search. Score is the
// relevance score in [0,1]: cosine similarity of normalized embeddings.
type SearchResult struct {
	ID      string
	Content string
	Score   float32
}

// Index is a chromem-go collection persisted to disk as gob files. It is
// built offline by the ingest command and opened read-only by the server;
// concurrent readers are safe.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	embed      chromem.EmbeddingFunc
	logger     *zap.Logger
}

// Open loads (or creates) the persistent index at path. The embedding
// function must match the one the collection was built with.
func Open(path, collectionName string, embed chromem.EmbeddingFunc, logger *zap.Logger) (*Index, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", collectionName, err)
	}

	logger.Info("vector index opened",
		zap.String("path", path),
		zap.String("collection", collectionName),
		zap.Int("documents", collection.Count()),
	)

	return &Index{db: db, collection: collection, name: collectionName, embed: embed, logger: logger}, nil
}

// Reset drops and recreates the collection; used before a full re-ingest.
func (ix *Index) Reset() error {
	if err := ix.db.DeleteCollection(ix.name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", ix.name, err)
	}
	collection, err := ix.db.GetOrCreateCollection(ix.name, nil, ix.embed)
	if err != nil {
		return fmt.Errorf("failed to recreate collection %s: %w", ix.name, err)
	}
	ix.collection = collection
	return nil
}

func (ix *Index) Count() int {
	return ix.collection.Count()
}

// Search returns the k nearest documents to the query in descending
// relevance order. k is capped at the collection size, which chromem
// requires; an empty collection yields no results.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	docCount := ix.collection.Count()
	if docCount == 0 {
		return nil, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := ix.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector index query failed: %w", err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:      r.ID,
			Content: r.Content,
			Score:   r.Similarity,
		}
	}

	ix.logger.Debug("searched vector index",
		zap.Int("k", k),
		zap.Int("results", len(searchResults)),
	)
	return searchResults, nil
}

// Add embeds and stores documents in the collection.
func (ix *Index) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:      doc.ID,
			Content: doc.Content,
		}
	}

	if err := ix.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("failed to add documents to index: %w", err)
	}
	return nil
}
