// Package vectorstore implements the embedding index a concept/similarity
// signal computes into and top-k search reads from.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/value"
)

// Key addresses a single embedding row: the source row's uuid plus the
// nested list indices of the particular span/sentence/chunk it came from.
type Key = value.CompositeKey

// Store is the interface compute_signal and select_rows' top-k shortcut use
// to persist and query an embedding column group: add, get, top-k search.
type Store interface {
	// Add indexes vectors under keys, one vector per key, in order.
	Add(ctx context.Context, keys []Key, vectors []pgvector.Vector) error
	// Get returns the vectors previously added under keys, in the same order.
	Get(ctx context.Context, keys []Key) ([]pgvector.Vector, error)
	// TopK returns the k keys with highest cosine similarity to query,
	// restricted to rowUUIDs when non-empty (a pre-UDF filter narrowing the
	// candidate set before the vector scan).
	TopK(ctx context.Context, query pgvector.Vector, k int, rowUUIDs []string) ([]ScoredKey, error)
}

// ScoredKey pairs a Key with its similarity score against a TopK query.
type ScoredKey struct {
	Key   Key
	Score float32
}

// MemStore is an in-memory Store, adequate for a single dataset's signal
// column group at the index sizes this engine targets (spec Non-goals:
// no distributed ANN index).
type MemStore struct {
	mu      sync.RWMutex
	keys    []Key
	vectors []pgvector.Vector
	index   map[string]int // uuid|indices -> position in keys/vectors
}

// NewMemStore returns an empty in-memory vector store.
func NewMemStore() *MemStore {
	return &MemStore{index: map[string]int{}}
}

func keyString(k Key) string {
	return fmt.Sprintf("%s|%v", k.UUID, k.Indices)
}

// Add implements Store.
func (m *MemStore) Add(_ context.Context, keys []Key, vectors []pgvector.Vector) error {
	if len(keys) != len(vectors) {
		return dserr.UDFShapeMismatch("vector store add: %d keys but %d vectors", len(keys), len(vectors))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, k := range keys {
		ks := keyString(k)
		if pos, ok := m.index[ks]; ok {
			m.vectors[pos] = vectors[i]
			continue
		}
		m.index[ks] = len(m.keys)
		m.keys = append(m.keys, k)
		m.vectors = append(m.vectors, vectors[i])
	}
	return nil
}

// Get implements Store.
func (m *MemStore) Get(_ context.Context, keys []Key) ([]pgvector.Vector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]pgvector.Vector, len(keys))
	for i, k := range keys {
		pos, ok := m.index[keyString(k)]
		if !ok {
			return nil, dserr.NotFound("no embedding indexed for key %+v", k)
		}
		out[i] = m.vectors[pos]
	}
	return out, nil
}

// TopK implements Store via a brute-force cosine-similarity scan, optionally
// restricted to a candidate uuid set.
func (m *MemStore) TopK(_ context.Context, query pgvector.Vector, k int, rowUUIDs []string) ([]ScoredKey, error) {
	if k <= 0 {
		return nil, dserr.InvalidFilter("top-k limit must be positive, got %d", k)
	}
	var allow map[string]bool
	if len(rowUUIDs) > 0 {
		allow = make(map[string]bool, len(rowUUIDs))
		for _, u := range rowUUIDs {
			allow[u] = true
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	qv := query.Slice()
	scored := make([]ScoredKey, 0, len(m.keys))
	for i, key := range m.keys {
		if allow != nil && !allow[key.UUID] {
			continue
		}
		scored = append(scored, ScoredKey{Key: key, Score: cosineSimilarity(qv, m.vectors[i].Slice())})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
