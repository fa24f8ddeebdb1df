package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LoadCSV reads a price series from a CSV file with a header row. The
// file must contain a close price column ("close" or "price") and a
// timestamp column ("timestamp", "time" or "date"); timestamps may be
// unix seconds or common date layouts. If a "signal" column is present
// its values are returned alongside the series, otherwise signals is nil.
func LoadCSV(path string) (Series, []Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	tsCol, closeCol, signalCol := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "timestamp", "time", "date":
			tsCol = i
		case "close", "price":
			closeCol = i
		case "signal":
			signalCol = i
		}
	}
	if closeCol == -1 {
		return nil, nil, fmt.Errorf("%w: no close column in %v", ErrMissingPrices, header)
	}
	if tsCol == -1 {
		return nil, nil, fmt.Errorf("no timestamp column in %v", header)
	}

	var series Series
	var signals []Signal
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV records: %w", err)
	}

	for i, record := range records {
		ts, err := parseTimestamp(record[tsCol])
		if err != nil {
			return nil, nil, fmt.Errorf("bad timestamp on row %d: %w", i+2, err)
		}
		closePrice, err := strconv.ParseFloat(record[closeCol], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("bad close price on row %d: %w", i+2, err)
		}
		series = append(series, PricePoint{Timestamp: ts, Close: closePrice})
		if signalCol != -1 {
			signals = append(signals, ParseSignal(strings.ToUpper(strings.TrimSpace(record[signalCol]))))
		}
	}

	return series, signals, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
