package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"
)

func WriteTradesCSV(path string, trades []TradeRecord) error {
	return writeFile(path, func(w io.Writer) error { return EncodeTradesCSV(w, trades) })
}

func WriteEquityCSV(path string, equity []EquityPoint) error {
	return writeFile(path, func(w io.Writer) error { return EncodeEquityCSV(w, equity) })
}

func EncodeTradesCSV(out io.Writer, trades []TradeRecord) error {
	w := csv.NewWriter(out)

	header := []string{
		"fold",
		"timestamp",
		"action",
		"price",
		"cost",
		"exit_price",
		"pnl",
		"capital",
		"forced",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, t := range trades {
		row := []string{
			strconv.Itoa(t.Fold),
			fmtTime(t.Timestamp),
			string(t.Action),
			fmtFloat(t.Price),
			fmtFloat(t.Cost),
			fmtFloat(t.ExitPrice),
			fmtFloat(t.PnL),
			fmtFloat(t.CapitalAfter),
			strconv.FormatBool(t.Forced),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func EncodeEquityCSV(out io.Writer, equity []EquityPoint) error {
	w := csv.NewWriter(out)

	header := []string{
		"fold",
		"timestamp",
		"capital",
		"position",
		"entry_price",
		"current_price",
		"equity",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, p := range equity {
		row := []string{
			strconv.Itoa(p.Fold),
			fmtTime(p.Timestamp),
			fmtFloat(p.Capital),
			strconv.Itoa(p.Position.Int()),
			fmtFloat(p.EntryPrice),
			fmtFloat(p.MarkPrice),
			fmtFloat(p.Equity),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func writeFile(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
