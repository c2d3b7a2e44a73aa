package feed

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tradeforge/robotengine/internal/domain"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestLoadCandlesCSV_ParsesRowsAndSkipsHeader(t *testing.T) {
	path := writeCSV(t, strings.Join([]string{
		"time,timestamp,timeframe,open,high,low,close,volume",
		"1709290800000,2024-03-01T11:00:00Z,60,100,101,99,100.5,1200",
		"1709294400000,2024-03-01T12:00:00Z,60,100.5,102,100,101,900",
	}, "\n"))

	candles, err := LoadCandlesCSV(path)
	if err != nil {
		t.Fatalf("LoadCandlesCSV: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(candles))
	}
	first := candles[0]
	if first.Time != 1709290800000 {
		t.Errorf("time = %d, want 1709290800000", first.Time)
	}
	if first.Timeframe != 60 {
		t.Errorf("timeframe = %d, want 60", first.Timeframe)
	}
	if first.Open != 100 || first.High != 101 || first.Low != 99 || first.Close != 100.5 {
		t.Errorf("ohlc = %v/%v/%v/%v", first.Open, first.High, first.Low, first.Close)
	}
	if first.Volume != 1200 {
		t.Errorf("volume = %v, want 1200", first.Volume)
	}
}

func TestLoadCandlesCSV_HeaderlessFile(t *testing.T) {
	path := writeCSV(t, "1709290800000,2024-03-01T11:00:00Z,60,100,101,99,100.5,1200\n")
	candles, err := LoadCandlesCSV(path)
	if err != nil {
		t.Fatalf("LoadCandlesCSV: %v", err)
	}
	if len(candles) != 1 {
		t.Errorf("candles = %d, want 1", len(candles))
	}
}

func TestLoadCandlesCSV_RejectsOutOfOrderRows(t *testing.T) {
	path := writeCSV(t, strings.Join([]string{
		"1709294400000,2024-03-01T12:00:00Z,60,100,101,99,100,900",
		"1709290800000,2024-03-01T11:00:00Z,60,100,101,99,100,900",
	}, "\n"))
	if _, err := LoadCandlesCSV(path); err == nil {
		t.Error("out-of-order rows accepted")
	}
}

func TestLoadCandlesCSV_EmptyFile(t *testing.T) {
	path := writeCSV(t, "time,timestamp,timeframe,open,high,low,close,volume\n")
	if _, err := LoadCandlesCSV(path); !errors.Is(err, domain.ErrEmptyCandleBatch) {
		t.Errorf("empty file: err = %v, want ErrEmptyCandleBatch", err)
	}
}

func TestLoadCandlesCSV_MissingFile(t *testing.T) {
	if _, err := LoadCandlesCSV(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("missing file accepted")
	}
}
