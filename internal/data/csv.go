package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"walkforward-backtest/internal/model"
)

var requiredColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// LoadOHLCVCSV reads a headered OHLCV file. Column order is free; an optional
// symbol column is honored. When symbols is non-empty only those rows are kept.
func LoadOHLCVCSV(path string, symbols ...string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bars, err := ReadOHLCV(f, symbols...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

func ReadOHLCV(r io.Reader, symbols ...string) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty csv")
		}
		return nil, err
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	symCol, hasSym := col["symbol"]

	want := map[string]bool{}
	for _, s := range symbols {
		want[strings.ToUpper(s)] = true
	}

	var bars []model.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var b model.Bar
		if hasSym {
			b.Symbol = strings.ToUpper(rec[symCol])
		}
		if len(want) > 0 && hasSym && !want[b.Symbol] {
			continue
		}
		if b.Timestamp, err = ParseTimestamp(rec[col["timestamp"]]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		fields := []*float64{&b.Open, &b.High, &b.Low, &b.Close, &b.Volume}
		for i, name := range requiredColumns[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[col[name]]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, name, err)
			}
			*fields[i] = v
		}
		bars = append(bars, b)
	}
	return bars, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC3339, common date-time layouts (as UTC) and Unix
// epochs in seconds or milliseconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// WriteOHLCVCSV writes bars in the layout ReadOHLCV accepts, creating parent
// directories as needed.
func WriteOHLCVCSV(path string, bars []model.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "symbol", "open", "high", "low", "close", "volume"}); err != nil {
		f.Close()
		return err
	}
	ff := func(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }
	for _, b := range bars {
		row := []string{b.Timestamp.UTC().Format(time.RFC3339), b.Symbol, ff(b.Open), ff(b.High), ff(b.Low), ff(b.Close), ff(b.Volume)}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
