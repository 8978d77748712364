package classifier

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
)

// HNSW parameters for fingerprint feature vectors.
const (
	// DefaultMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	DefaultMaxNeighbors = 16

	// DefaultEfSearch is the search candidate pool size.
	DefaultEfSearch = 64

	// searchK asks for the best match and a runner-up.
	searchK = 2
)

// HNSW wraps an approximate nearest-neighbor graph. Every Retrain builds a
// fresh graph, so deletions never leave tombstones behind.
type HNSW struct {
	graph        *hnsw.Graph[int64]
	maxNeighbors int
	efSearch     int
	dim          int
}

// NewHNSW creates an empty graph classifier.
func NewHNSW(maxNeighbors, efSearch int) *HNSW {
	if maxNeighbors <= 0 {
		maxNeighbors = DefaultMaxNeighbors
	}
	if efSearch <= 0 {
		efSearch = DefaultEfSearch
	}
	return &HNSW{maxNeighbors: maxNeighbors, efSearch: efSearch}
}

func (h *HNSW) newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = h.maxNeighbors
	g.Ml = 1.0 / float64(h.maxNeighbors)
	g.EfSearch = h.efSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

func (h *HNSW) Retrain(records []biometric.Record) error {
	if len(records) == 0 {
		h.graph = nil
		h.dim = 0
		return nil
	}

	dim := len(records[0].Features)
	g := h.newGraph()
	for i := range records {
		if len(records[i].Features) != dim {
			return fmt.Errorf("%w: record %d", biometric.ErrDimensionMismatch, records[i].ID)
		}
		g.Add(hnsw.MakeNode(records[i].ID, append([]float32(nil), records[i].Features...)))
	}

	h.graph = g
	h.dim = dim
	return nil
}

func (h *HNSW) Classify(vec []float32) (Prediction, error) {
	if h.graph == nil || h.graph.Len() == 0 {
		return Prediction{}, biometric.ErrEmptyGallery
	}
	if len(vec) != h.dim {
		return Prediction{}, fmt.Errorf("%w: expected %d, got %d", biometric.ErrDimensionMismatch, h.dim, len(vec))
	}

	nodes := h.graph.Search(vec, searchK)
	if len(nodes) == 0 {
		return Prediction{}, biometric.ErrEmptyGallery
	}

	// Compute distances from the node vectors directly.
	cands := make([]neighbor, len(nodes))
	for i, n := range nodes {
		cands[i] = neighbor{id: n.Key, distance: NormalizedDistance(vec, n.Value)}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].distance < cands[j].distance })
	return predictionFrom(cands), nil
}

func (h *HNSW) State() State {
	if h.graph == nil || h.graph.Len() == 0 {
		return Empty
	}
	return Trained
}

func (h *HNSW) Len() int {
	if h.graph == nil {
		return 0
	}
	return h.graph.Len()
}

func (h *HNSW) Contains(id int64) bool {
	if h.graph == nil {
		return false
	}
	_, ok := h.graph.Lookup(id)
	return ok
}

func (h *HNSW) Kind() string { return KindHNSW }

func (h *HNSW) MarshalBinary() ([]byte, error) {
	if h.graph == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := h.graph.Export(&buf); err != nil {
		return nil, fmt.Errorf("exporting HNSW graph: %w", err)
	}
	return buf.Bytes(), nil
}

func (h *HNSW) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return h.Retrain(nil)
	}
	g := h.newGraph()
	if err := g.Import(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("importing HNSW graph: %w", err)
	}
	h.graph = g
	h.dim = g.Dims()
	return nil
}
