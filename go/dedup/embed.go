// Package dedup detects flash floods: bursts of semantically similar
// tickets inside a sliding five-minute window. Ticket text is embedded
// into a unit-norm vector; similarity is the inner product.
package dedup

import (
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Embedder maps text to a unit-norm vector. Embeddings from the same
// Embedder are comparable by inner product.
type Embedder interface {
	Embed(text string) []float64
}

const defaultDim = 256

// HashingEmbedder is a deterministic feature-hashing embedder: word
// unigrams and bigrams are hashed into a fixed-dimension signed vector,
// which is then normalized. Texts sharing most of their vocabulary land
// close to each other, which is what flood detection needs; it makes no
// attempt at deeper semantics.
type HashingEmbedder struct {
	Dim int
}

func (e HashingEmbedder) Embed(text string) []float64 {
	var dim = e.Dim
	if dim <= 0 {
		dim = defaultDim
	}
	var vec = make([]float64, dim)

	var tokens = tokenize(text)
	for i, tok := range tokens {
		addFeature(vec, tok)
		if i+1 < len(tokens) {
			addFeature(vec, tok+" "+tokens[i+1])
		}
	}
	return normalize(vec)
}

func addFeature(vec []float64, feature string) {
	var h = xxhash.Sum64String(feature)
	var idx = int(h % uint64(len(vec)))
	// One hash bit picks the sign, which keeps colliding features from
	// systematically inflating similarity.
	if h&(1<<63) != 0 {
		vec[idx] -= 1
	} else {
		vec[idx] += 1
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

func normalize(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return vec
	}
	var norm = math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Dot is the inner product; for unit-norm vectors this is the cosine
// similarity. Dimension mismatch yields 0.
func Dot(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
