package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"aquaagent/internal/embedding"
	"aquaagent/internal/logging"
)

// Chunk is one embedded fragment of a document.
type Chunk struct {
	Text   string
	Vector []float32
}

// ScoredChunk is a chunk with its similarity to a query.
type ScoredChunk struct {
	Text  string
	Score float64
}

// Index is an in-memory vector index over document chunks. Documents are
// keyed by an opaque ID (the scrape tool uses a URL hash) so repeated
// queries against the same page skip re-embedding.
type Index struct {
	mu   sync.RWMutex
	docs map[string][]Chunk
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{docs: make(map[string][]Chunk)}
}

// Has reports whether a document is already indexed.
func (ix *Index) Has(docID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.docs[docID]
	return ok
}

// Add indexes a document's chunks, replacing any previous entry.
func (ix *Index) Add(docID string, chunks []Chunk) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.docs[docID] = chunks
}

// Remove drops a document from the index.
func (ix *Index) Remove(docID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.docs, docID)
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Search returns the topK chunks of a document most similar to the query
// vector, highest score first.
func (ix *Index) Search(docID string, query []float32, topK int) ([]ScoredChunk, error) {
	ix.mu.RLock()
	chunks, ok := ix.docs[docID]
	ix.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("document not indexed: %s", docID)
	}
	if topK <= 0 {
		topK = 5
	}

	scored := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		score, err := embedding.CosineSimilarity(query, c.Vector)
		if err != nil {
			return nil, fmt.Errorf("similarity failed: %w", err)
		}
		scored = append(scored, ScoredChunk{Text: c.Text, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// IndexDocument splits text, embeds every chunk, and stores the result under
// docID. Returns the number of chunks indexed.
func (ix *Index) IndexDocument(ctx context.Context, engine embedding.Engine, splitter *Splitter, docID, text string) (int, error) {
	timer := logging.StartTimer(logging.CategoryResearch, "IndexDocument")
	defer timer.Stop()

	texts := splitter.Split(text)
	if len(texts) == 0 {
		return 0, fmt.Errorf("no content to index")
	}

	vectors, err := engine.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(texts), len(vectors))
	}

	chunks := make([]Chunk, len(texts))
	for i := range texts {
		chunks[i] = Chunk{Text: texts[i], Vector: vectors[i]}
	}
	ix.Add(docID, chunks)

	logging.ResearchDebug("Indexed document %s: %d chunks", docID, len(chunks))
	return len(chunks), nil
}

// Query embeds the query text and searches a document.
func (ix *Index) Query(ctx context.Context, engine embedding.Engine, docID, query string, topK int) ([]ScoredChunk, error) {
	vec, err := engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}
	return ix.Search(docID, vec, topK)
}
