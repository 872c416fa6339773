// Package embedder turns text into vectors for similarity search.
package embedder

import "context"

// Embedder is implemented by every embedding provider.
type Embedder interface {
	// Embed returns the vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the width of the vectors this embedder produces.
	// Vector namespaces are created with this dimension.
	Dimension() int

	// ModelName identifies the underlying model.
	ModelName() string
}

// modelDimensions maps known embedding models to their vector width.
var modelDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// ModelDimension returns the vector width for a known model, or
// fallback when the model is not in the table.
func ModelDimension(model string, fallback int) int {
	if d, ok := modelDimensions[model]; ok {
		return d
	}
	return fallback
}
