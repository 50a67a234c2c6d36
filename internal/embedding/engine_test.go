package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquaagent/internal/config"
)

func TestOllamaEngineEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge-m3", req.Model)
		assert.Equal(t, "hello world", req.Prompt)

		json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embedding: []float32{0.1, 0.2, 0.3},
		})
	}))
	defer server.Close()

	engine, err := NewOllamaEngine(server.URL, "bge-m3")
	require.NoError(t, err)

	vec, err := engine.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOllamaEngineEmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Derive a distinct vector per prompt so ordering is verifiable.
		var v float32
		switch req.Prompt {
		case "first":
			v = 1
		case "second":
			v = 2
		case "third":
			v = 3
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embedding: []float32{v},
		})
	}))
	defer server.Close()

	engine, err := NewOllamaEngine(server.URL, "")
	require.NoError(t, err)

	vecs, err := engine.EmbedBatch(context.Background(), []string{"first", "second", "third"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1}, vecs[0])
	assert.Equal(t, []float32{2}, vecs[1])
	assert.Equal(t, []float32{3}, vecs[2])
}

func TestOllamaEngineServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	engine, err := NewOllamaEngine(server.URL, "bge-m3")
	require.NoError(t, err)

	_, err = engine.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOllamaEngineHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	engine, err := NewOllamaEngine(server.URL, "")
	require.NoError(t, err)
	require.NoError(t, engine.HealthCheck(context.Background()))

	server.Close()
	assert.Error(t, engine.HealthCheck(context.Background()))
}

func TestOllamaEngineDefaults(t *testing.T) {
	engine, err := NewOllamaEngine("", "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", engine.endpoint)
	assert.Equal(t, "ollama:bge-m3", engine.Name())
	assert.Equal(t, 1024, engine.Dimensions())
}

func TestNewEngineUnsupportedProvider(t *testing.T) {
	_, err := NewEngine(config.EmbeddingConfig{Provider: "huggingface"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported embedding provider")
}

func TestNewEngineGenAIRequiresKey(t *testing.T) {
	_, err := NewEngine(config.EmbeddingConfig{Provider: "genai"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    []float32
		want    float64
		wantErr bool
	}{
		{name: "identical", a: []float32{1, 0, 0}, b: []float32{1, 0, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 2}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
