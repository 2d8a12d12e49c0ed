package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"

	"github.com/sashabaranov/go-openai"
)

// DefaultDimension is the embedding dimension the in-memory similarity
// matrix assumes when no embedder specifies a different one.
const DefaultDimension = 384

// Embedder turns a task description into an L2-normalised vector. Two
// concrete implementations ship: an OpenAI-backed production embedder and a
// deterministic hash-based fallback. A random, non-deterministic fallback is
// deliberately not provided — it would defeat the cache's similarity
// contract silently instead of failing loudly.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// OpenAIEmbedderConfig configures the OpenAI-backed Embedder.
type OpenAIEmbedderConfig struct {
	APIKey  string
	BaseURL string
	Model   string // text-embedding-3-small or text-embedding-3-large
}

// openAIModelDimensions records the output dimension of each embedding model
// the cache is willing to use; an unrecognised model is rejected at
// construction time rather than silently assumed to be 1536, since a wrong
// dimension would corrupt every stored similarity comparison.
var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// openAIEmbedder calls the OpenAI embeddings API directly and L2-normalises
// the result to the cache's Embedder contract.
type openAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewOpenAIEmbedder builds an Embedder backed by the OpenAI embeddings API.
func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) (Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cache: openai embedder: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	dimension, known := openAIModelDimensions[cfg.Model]
	if !known {
		return nil, fmt.Errorf("cache: openai embedder: unrecognised model %q", cfg.Model)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &openAIEmbedder{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		dimension: dimension,
	}, nil
}

func (e *openAIEmbedder) Dimension() int { return e.dimension }

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("cache: openai embedder: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("cache: openai embedder: no embedding returned")
	}
	return normalize(resp.Data[0].Embedding), nil
}

// deterministicEmbedder derives a vector from a SHA-256 digest of the input
// text, used as a seed for a deterministic pseudo-random generator. The same
// text always yields the same vector (the roundtrip similarity law in the
// spec's testable properties depends on this), but distinct texts are not
// expected to cluster meaningfully — this is a structural stand-in for a
// real embedding model, not a semantic one.
type deterministicEmbedder struct {
	dimension int
}

// NewDeterministicEmbedder builds a hash-seeded Embedder of the given
// dimension. A non-positive dimension falls back to DefaultDimension.
func NewDeterministicEmbedder(dimension int) Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &deterministicEmbedder{dimension: dimension}
}

func (e *deterministicEmbedder) Dimension() int { return e.dimension }

func (e *deterministicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	vec := make([]float32, e.dimension)
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
	}
	return normalize(vec), nil
}

// normalize L2-normalises vec so that a dot product between two normalised
// vectors equals cosine similarity.
func normalize(vec []float32) []float32 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sumSquares))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
