package strategy

import (
	"fmt"
	"strings"

	"walkforward-backtest/internal/model"
)

// ScheduleParams holds a daily window: long during [EntryTime, ExitTime),
// flat otherwise. Times are "HH:MM" on the bar timestamps' clock.
type ScheduleParams struct {
	EntryTime string
	ExitTime  string
}

type Schedule struct {
	Params ScheduleParams

	entryMins int
	exitMins  int
}

func NewSchedule(p ScheduleParams) (*Schedule, error) {
	entry, err := parseHHMM(p.EntryTime)
	if err != nil {
		return nil, err
	}
	exit, err := parseHHMM(p.ExitTime)
	if err != nil {
		return nil, err
	}
	return &Schedule{Params: p, entryMins: entry, exitMins: exit}, nil
}

func (s *Schedule) Name() string { return "schedule" }

func (s *Schedule) Signals(bars []model.Bar) ([]model.Signal, error) {
	out := make([]model.Signal, len(bars))
	for i, b := range bars {
		mins := b.Timestamp.Hour()*60 + b.Timestamp.Minute()
		if inWindow(mins, s.entryMins, s.exitMins) {
			out[i] = model.SignalBuy
		} else {
			out[i] = model.SignalSell
		}
	}
	return out, nil
}

func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	var h, m int
	if _, err := fmt.Sscanf(parts[0], "%d", &h); err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &m); err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*60 + m, nil
}

// inWindow checks whether tMins is in [start, end) on a 24h clock. Equal
// bounds give an empty window; start > end wraps across midnight.
func inWindow(tMins, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return tMins >= start && tMins < end
	}
	return tMins >= start || tMins < end
}
