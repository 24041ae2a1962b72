package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/transitassist/chatbot/internal/index"
)

const (
	// NumRelevantDocs is how many documents a search considers.
	NumRelevantDocs = 3
	// RelevanceThreshold is the minimum relevance score a document must
	// reach to contribute to the context.
	RelevanceThreshold = 0.70
)

// Searcher is the similarity-search half of the vector index.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]index.SearchResult, error)
}

// Retriever turns a query into a context string by similarity search over
// the knowledge index. It holds no per-query state: every call re-embeds
// the query and re-searches.
type Retriever struct {
	searcher Searcher
	logger   *zap.Logger
}

func NewRetriever(searcher Searcher, logger *zap.Logger) *Retriever {
	return &Retriever{searcher: searcher, logger: logger}
}

// Retrieve returns the concatenated content of the documents that score at
// least RelevanceThreshold against the query, each followed by a newline,
// in descending relevance order. An empty string means no document was
// relevant enough.
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, error) {
	results, err := r.searcher.Search(ctx, query, NumRelevantDocs)
	if err != nil {
		return "", fmt.Errorf("failed to search index: %w", err)
	}

	// Results arrive in descending score order; ties keep insertion order.
	var contextBuilder strings.Builder
	retrieved := 0
	for _, res := range results {
		if res.Score < RelevanceThreshold {
			continue
		}
		contextBuilder.WriteString(res.Content)
		contextBuilder.WriteString("\n")
		retrieved++
	}

	if retrieved == 0 {
		r.logger.Debug("no documents cleared the relevance threshold",
			zap.Float64("threshold", RelevanceThreshold),
		)
		return "", nil
	}

	r.logger.Debug("retrieved context documents", zap.Int("count", retrieved))
	return contextBuilder.String(), nil
}
