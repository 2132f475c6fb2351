// Package synthesis derives similarity links between findings and
// artifacts using deterministic local embeddings. No external model is
// involved: vectors are signed feature hashes, reproducible across
// machines and runs.
package synthesis

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// Model identifies the embedding scheme; stored rows are reused only
// while both the model and the content hash match.
const Model = "hashing_v1"

// Dims is the fixed embedding dimensionality.
const Dims = 256

var embedTokenRe = regexp.MustCompile(`[a-z0-9]{2,}`)

var embedStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"if": {}, "in": {}, "into": {}, "is": {}, "it": {}, "its": {}, "of": {},
	"on": {}, "or": {}, "that": {}, "the": {}, "their": {}, "then": {},
	"there": {}, "these": {}, "this": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {},
}

func embedTokens(text string) []string {
	tokens := embedTokenRe.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := embedStopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Embed maps text to an L2-normalized Dims-length vector via signed
// feature hashing: each token adds +1 or -1 to one bucket, chosen by
// two FNV-64a hashes. Identical text always embeds identically.
func Embed(text string) []float32 {
	vec := make([]float32, Dims)
	for _, token := range embedTokens(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		bucket := h.Sum64() % Dims

		h.Reset()
		h.Write([]byte("sign:" + token))
		if h.Sum64()%2 == 0 {
			vec[bucket]++
		} else {
			vec[bucket]--
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

// Cosine returns the cosine similarity of two vectors. Inputs from
// Embed are already unit-length, so this reduces to a dot product, but
// the norms are recomputed to stay correct for arbitrary vectors.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ContentHash fingerprints embedded text so stored vectors can be
// reused while the content is unchanged.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
