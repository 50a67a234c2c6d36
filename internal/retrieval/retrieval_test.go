package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hashEngine is a deterministic embedding stub: the vector encodes which
// marker words a text contains, so similarity search is predictable.
type hashEngine struct{}

func (hashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	markers := []string{"postgres", "nginx", "docker", "kernel"}
	vec := make([]float32, len(markers))
	for i, m := range markers {
		if strings.Contains(strings.ToLower(text), m) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func (e hashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

func (hashEngine) Dimensions() int { return 4 }
func (hashEngine) Name() string    { return "stub" }

func TestSplitterShortText(t *testing.T) {
	s := NewSplitter(1000, 200)
	chunks := s.Split("a short paragraph")
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short paragraph", chunks[0])
}

func TestSplitterEmpty(t *testing.T) {
	s := NewSplitter(1000, 200)
	assert.Nil(t, s.Split("   \n  "))
}

func TestSplitterRespectsChunkSize(t *testing.T) {
	s := NewSplitter(100, 20)

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("some sentence about systems administration.\n\n")
	}

	chunks := s.Split(b.String())
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 100+21, "chunk too large: %q", c)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestSplitterOverlap(t *testing.T) {
	s := NewSplitter(50, 10)

	text := strings.Repeat("alpha beta gamma delta epsilon ", 10)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	// Each chunk after the first starts with the tail of its predecessor.
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := strings.TrimSpace(string(prev[len(prev)-10:]))
		assert.True(t, strings.HasPrefix(strings.TrimSpace(chunks[i]), tail),
			"chunk %d missing overlap from predecessor", i)
	}
}

func TestSplitterHardCutsLongWord(t *testing.T) {
	s := NewSplitter(50, 0)
	chunks := s.Split(strings.Repeat("x", 175))
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 51)
	}
}

func TestIndexSearchRanksByRelevance(t *testing.T) {
	ix := NewIndex()
	engine := hashEngine{}
	ctx := context.Background()

	text := "nginx reverse proxy setup\n\n" +
		"postgres replication lag tuning\n\n" +
		"docker compose networking basics"

	n, err := ix.IndexDocument(ctx, engine, NewSplitter(40, 0), "doc1", text)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, ix.Has("doc1"))

	results, err := ix.Query(ctx, engine, "doc1", "postgres", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Text, "postgres")
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestIndexSearchUnknownDocument(t *testing.T) {
	ix := NewIndex()
	_, err := ix.Search("missing", []float32{1}, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not indexed")
}

func TestIndexRemove(t *testing.T) {
	ix := NewIndex()
	ix.Add("doc", []Chunk{{Text: "a", Vector: []float32{1}}})
	require.Equal(t, 1, ix.Len())

	ix.Remove("doc")
	assert.Equal(t, 0, ix.Len())
	assert.False(t, ix.Has("doc"))
}

func TestIndexDocumentEmptyText(t *testing.T) {
	ix := NewIndex()
	_, err := ix.IndexDocument(context.Background(), hashEngine{}, NewSplitter(100, 0), "doc", "")
	require.Error(t, err)
}
