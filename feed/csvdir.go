// Package feed provides bar sources for the cache reconciler. The CSV
// directory source serves bars from files on disk, which is how imported
// datasets (see the import command) are replayed without a live vendor.
package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gridtrading/gridbot/cache"
	"github.com/gridtrading/gridbot/market"
)

// DirSource reads bars from <root>/<SYMBOL>/<YYYY-MM-DD>.csv. Each file
// holds minute bars with the header
//
//	time,open,high,low,close,vwap,volume
//
// and splits, when present, live in <root>/<SYMBOL>/splits.csv with the
// header effective_date,ratio. A day with no file is a non-trading day,
// which is exactly what a vendor returning no bars means.
type DirSource struct {
	Root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{Root: root}
}

var _ cache.BarSource = (*DirSource)(nil)

func (s *DirSource) FetchDayBars(ctx context.Context, symbol string, day market.Date) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.Root, symbol, string(day)+".csv")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, cache.ErrNotTradingDay
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 7

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, cache.ErrNotTradingDay
		}
		return nil, fmt.Errorf("read %s header: %w", path, err)
	}

	var bars []market.Bar
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		bar, err := parseBarRow(row)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, cache.ErrNotTradingDay
	}
	return bars, nil
}

func (s *DirSource) FetchSplits(ctx context.Context, symbol string) ([]market.SplitInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.Root, symbol, "splits.csv")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s header: %w", path, err)
	}

	var splits []market.SplitInfo
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		day, err := market.ParseDate(row[0])
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		ratio, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s ratio %q: %w", path, row[1], err)
		}
		if ratio <= 0 {
			return nil, fmt.Errorf("parse %s: non-positive split ratio %v", path, ratio)
		}
		splits = append(splits, market.SplitInfo{EffectiveDate: day, Ratio: ratio})
	}
	return splits, nil
}

func parseBarRow(row []string) (market.Bar, error) {
	ts, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		return market.Bar{}, fmt.Errorf("time %q: %w", row[0], err)
	}

	fields := [5]float64{}
	for i, name := range []string{"open", "high", "low", "close", "vwap"} {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("%s %q: %w", name, row[i+1], err)
		}
		fields[i] = v
	}

	volume, err := strconv.ParseFloat(row[6], 64)
	if err != nil {
		return market.Bar{}, fmt.Errorf("volume %q: %w", row[6], err)
	}

	return market.Bar{
		Timestamp: ts.UTC(),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		VWAP:      fields[4],
		Volume:    volume,
	}, nil
}
