package model

import "errors"

// PositionState is the only trading state carried from one fold to the next.
// It is passed by value and returned updated; never share a pointer to it.
type PositionState struct {
	Side       Side    `json:"side"`
	EntryPrice float64 `json:"entry_price"`
	Capital    float64 `json:"capital"`
}

// NewPositionState returns a flat position holding initialCapital.
func NewPositionState(initialCapital float64) (PositionState, error) {
	s := PositionState{Side: SideFlat, Capital: initialCapital}
	if err := s.Validate(); err != nil {
		return PositionState{}, err
	}
	return s, nil
}

func (s PositionState) Validate() error {
	if s.Capital <= 0 {
		return errors.New("capital must be > 0")
	}
	switch s.Side {
	case SideFlat:
	case SideLong:
		if s.EntryPrice <= 0 {
			return errors.New("long position requires entry price > 0")
		}
	default:
		return errors.New("side must be FLAT or LONG")
	}
	return nil
}

func (s PositionState) IsLong() bool { return s.Side == SideLong }

// Equity marks the position to market at price. A flat position is worth its capital.
func (s PositionState) Equity(markPrice float64) float64 {
	if s.Side != SideLong || s.EntryPrice == 0 {
		return s.Capital
	}
	return s.Capital * (1 + (markPrice-s.EntryPrice)/s.EntryPrice)
}
