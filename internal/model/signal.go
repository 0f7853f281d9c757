package model

import (
	"encoding/json"
	"fmt"
)

// Signal is the discrete trading decision for one test row.
// Numeric values match the {-1, 0, +1} convention used in trade logs.
type Signal int

const (
	SignalSell Signal = -1
	SignalHold Signal = 0
	SignalBuy  Signal = 1
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Action is the side of an executed trade. Keep these values stable; they are
// intended for CSV output.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Side is the position held between rows. Short positions are not modelled.
type Side string

const (
	SideFlat Side = "FLAT"
	SideLong Side = "LONG"
)

// Int returns 0 for FLAT and 1 for LONG, the encoding used in equity CSVs.
func (s Side) Int() int {
	if s == SideLong {
		return 1
	}
	return 0
}

// Class labels for three-way classification targets.
const (
	ClassSell = 0
	ClassHold = 1
	ClassBuy  = 2
)

// Task selects how model output is interpreted.
type Task string

const (
	TaskClassification Task = "classification"
	TaskRegression     Task = "regression"
)

func (t Task) Valid() bool {
	return t == TaskClassification || t == TaskRegression
}

func ParseTask(s string) (Task, error) {
	t := Task(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown task %q (want classification or regression)", s)
	}
	return t, nil
}

func (t *Task) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTask(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
