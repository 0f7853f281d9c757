package predictor

import (
	"encoding/json"
	"fmt"
	"io"
)

type envelope struct {
	Kind  string          `json:"kind"`
	State json.RawMessage `json:"state"`
}

// Save writes a predictor and its learned state as JSON.
func Save(w io.Writer, p Predictor) error {
	state, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode %s state: %w", p.Kind(), err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(envelope{Kind: p.Kind(), State: state})
}

// Load restores a predictor written by Save.
func Load(r io.Reader) (Predictor, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode predictor: %w", err)
	}
	p, err := New(env.Kind, nil)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(env.State, p); err != nil {
		return nil, fmt.Errorf("decode %s state: %w", env.Kind, err)
	}
	return p, nil
}
