// Package index maintains an in-memory HNSW graph over the enrolled
// gallery for 1:N identification queries.
package index

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/facegate/internal/identity"
	"github.com/kozaktomas/facegate/internal/store"
)

const maxNeighbors = 16

// ErrEmpty is returned when the gallery has no enrolled credentials.
var ErrEmpty = errors.New("identification index is empty")

// Candidate is one gallery entry returned by a search, nearest first.
type Candidate struct {
	Key      identity.Key
	Distance float64
}

// Index wraps the HNSW graph over enrolled signatures. Keys are the
// role/username strings so one node maps back to one credential.
type Index struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	keyByID map[string]identity.Key
}

func New() *Index {
	return &Index{
		keyByID: make(map[string]identity.Key),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors)
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index content with the given credentials.
func (ix *Index) Build(creds []store.Credential) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(creds) == 0 {
		ix.graph = nil
		ix.keyByID = make(map[string]identity.Key)
		return
	}

	g := newGraph()
	keys := make(map[string]identity.Key, len(creds))
	for _, cred := range creds {
		if len(cred.Signature) == 0 {
			continue
		}
		id := cred.Key.String()
		g.Add(hnsw.MakeNode(id, cred.Signature))
		keys[id] = cred.Key
	}

	ix.graph = g
	ix.keyByID = keys
}

// Add inserts one credential, typically right after enrollment.
func (ix *Index) Add(cred store.Credential) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(cred.Signature) == 0 {
		return
	}
	if ix.graph == nil {
		ix.graph = newGraph()
	}
	id := cred.Key.String()
	ix.graph.Add(hnsw.MakeNode(id, cred.Signature))
	ix.keyByID[id] = cred.Key
}

// Len returns the number of indexed credentials.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.keyByID)
}

// Search returns up to k nearest gallery entries for the probe
// signature, nearest first. Distances are exact Euclidean distances
// recomputed from the stored vectors.
func (ix *Index) Search(probe []float32, k int) ([]Candidate, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph == nil || len(ix.keyByID) == 0 {
		return nil, ErrEmpty
	}

	neighbors := ix.graph.Search(probe, k)
	candidates := make([]Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		key, ok := ix.keyByID[n.Key]
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			Key:      key,
			Distance: float64(hnsw.EuclideanDistance(probe, n.Value)),
		})
	}
	return candidates, nil
}
