package classifier

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
)

// Exact is a brute-force 1-nearest-neighbor classifier.
type Exact struct {
	ids     []int64
	vectors [][]float32
	members map[int64]struct{}
}

// NewExact creates an empty exact classifier.
func NewExact() *Exact {
	return &Exact{members: make(map[int64]struct{})}
}

// exactState is the serialized form of an Exact classifier.
type exactState struct {
	IDs     []int64
	Vectors [][]float32
}

func (e *Exact) Retrain(records []biometric.Record) error {
	ids := make([]int64, 0, len(records))
	vectors := make([][]float32, 0, len(records))
	members := make(map[int64]struct{}, len(records))
	for i := range records {
		if len(records) > 0 && len(records[i].Features) != len(records[0].Features) {
			return fmt.Errorf("%w: record %d", biometric.ErrDimensionMismatch, records[i].ID)
		}
		ids = append(ids, records[i].ID)
		vectors = append(vectors, append([]float32(nil), records[i].Features...))
		members[records[i].ID] = struct{}{}
	}
	e.ids, e.vectors, e.members = ids, vectors, members
	return nil
}

func (e *Exact) Classify(vec []float32) (Prediction, error) {
	if len(e.ids) == 0 {
		return Prediction{}, biometric.ErrEmptyGallery
	}
	if len(vec) != len(e.vectors[0]) {
		return Prediction{}, fmt.Errorf("%w: expected %d, got %d", biometric.ErrDimensionMismatch, len(e.vectors[0]), len(vec))
	}

	cands := make([]neighbor, len(e.ids))
	for i := range e.ids {
		cands[i] = neighbor{id: e.ids[i], distance: NormalizedDistance(vec, e.vectors[i])}
	}
	// Stable so that equal distances resolve in enrollment order.
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].distance < cands[j].distance })
	return predictionFrom(cands), nil
}

func (e *Exact) State() State {
	if len(e.ids) == 0 {
		return Empty
	}
	return Trained
}

func (e *Exact) Len() int { return len(e.ids) }

func (e *Exact) Contains(id int64) bool {
	_, ok := e.members[id]
	return ok
}

func (e *Exact) Kind() string { return KindExact }

func (e *Exact) MarshalBinary() ([]byte, error) {
	if len(e.ids) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(exactState{IDs: e.ids, Vectors: e.vectors}); err != nil {
		return nil, fmt.Errorf("failed to encode classifier: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Exact) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return e.Retrain(nil)
	}
	var st exactState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return fmt.Errorf("failed to decode classifier: %w", err)
	}
	if len(st.IDs) != len(st.Vectors) {
		return fmt.Errorf("corrupt classifier: %d ids for %d vectors", len(st.IDs), len(st.Vectors))
	}
	records := make([]biometric.Record, len(st.IDs))
	for i := range st.IDs {
		records[i] = biometric.Record{ID: st.IDs[i], Features: st.Vectors[i]}
	}
	return e.Retrain(records)
}
