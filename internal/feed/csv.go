package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/tradeforge/robotengine/internal/domain"
)

// csv column layout: time,timestamp,timeframe,open,high,low,close,volume
const csvColumns = 8

// LoadCandlesCSV reads a candle dataset from a CSV file. A header row is
// detected and skipped. Rows must be in ascending time order.
func LoadCandlesCSV(path string) ([]domain.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = csvColumns

	var candles []domain.Candle
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: read %s: %w", path, err)
		}
		line++
		if line == 1 {
			if _, convErr := strconv.ParseInt(record[0], 10, 64); convErr != nil {
				continue // header row
			}
		}
		candle, err := parseCandleRecord(record)
		if err != nil {
			return nil, fmt.Errorf("feed: %s line %d: %w", path, line, err)
		}
		if n := len(candles); n > 0 && candle.Time <= candles[n-1].Time {
			return nil, fmt.Errorf("feed: %s line %d: candles out of order", path, line)
		}
		candles = append(candles, candle)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("feed: %s: %w", path, domain.ErrEmptyCandleBatch)
	}
	return candles, nil
}

func parseCandleRecord(record []string) (domain.Candle, error) {
	timeMs, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("time %q: %w", record[0], err)
	}
	timestamp, err := time.Parse(domain.TimeLayout, record[1])
	if err != nil {
		return domain.Candle{}, fmt.Errorf("timestamp %q: %w", record[1], err)
	}
	timeframe, err := strconv.Atoi(record[2])
	if err != nil {
		return domain.Candle{}, fmt.Errorf("timeframe %q: %w", record[2], err)
	}

	prices := make([]float64, 5)
	for i, name := range []string{"open", "high", "low", "close", "volume"} {
		v, err := strconv.ParseFloat(record[3+i], 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("%s %q: %w", name, record[3+i], err)
		}
		prices[i] = v
	}
	return domain.Candle{
		Time:      timeMs,
		Timestamp: timestamp,
		Timeframe: timeframe,
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    prices[4],
	}, nil
}
