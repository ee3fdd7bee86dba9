package model

import (
	"encoding/json"
	"math"
	"slices"
)

// Status classifies the outcome of processing one subhalo.
type Status int

const (
	StatusOK Status = iota
	StatusMissing
	StatusTransient
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMissing:
		return "missing"
	case StatusTransient:
		return "transient"
	default:
		return "failed"
	}
}

func (s Status) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// ItemResult is the immutable outcome for one subhalo. Values is aligned to the
// processor's columns; for any status other than StatusOK every value is NaN.
type ItemResult struct {
	ID     SubhaloID `json:"id"`
	Status Status    `json:"status"`
	Values []float64 `json:"-"`
	Err    string    `json:"error,omitempty"`
}

// NoData returns a result for id with n NaN values.
func NoData(id SubhaloID, status Status, n int, err error) ItemResult {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = math.NaN()
	}
	res := ItemResult{ID: id, Status: status, Values: vals}
	if err != nil {
		res.Err = err.Error()
	}
	return res
}

// Partial holds the results one rank computed for its chunk.
type Partial struct {
	Rank    int                      `json:"rank"`
	Results map[SubhaloID]ItemResult `json:"results"`
}

// Float is a float64 that encodes NaN and infinities as JSON null.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (f *Float) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Properties is the free-form record a sample catalogue keeps per subhalo.
type Properties map[string]any

// Catalogue maps subhalo ids to their sample properties.
type Catalogue map[SubhaloID]Properties

// IDs returns the catalogue keys in ascending order.
func (c Catalogue) IDs() []SubhaloID {
	ids := make([]SubhaloID, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
