package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"strategy-lab/internal/domain"
)

// CSVHeader is the expected column layout of bar files.
var CSVHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// CSVProvider reads bars from OHLCV CSV files. When path is a directory the
// file <ticker>_<interval>.csv inside it is used.
type CSVProvider struct {
	path string
}

// NewCSVProvider creates a provider rooted at path.
func NewCSVProvider(path string) *CSVProvider {
	return &CSVProvider{path: path}
}

// File resolves the CSV file for cfg.
func (p *CSVProvider) File(cfg domain.DataConfig) (string, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", p.path, err)
	}
	if !info.IsDir() {
		return p.path, nil
	}
	name := fmt.Sprintf("%s_%s.csv", strings.ToUpper(cfg.Ticker), cfg.Interval)
	return filepath.Join(p.path, name), nil
}

// Bars reads the file and returns the bars in [start, end).
func (p *CSVProvider) Bars(ctx context.Context, cfg domain.DataConfig) ([]domain.Bar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start, end, _ := cfg.Range()

	file, err := p.File(cfg)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	all, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	var bars []domain.Bar
	for _, b := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if b.Timestamp.Before(start) || !b.Timestamp.Before(end) {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, file)
	}
	if err := Validate(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// ReadCSV parses bars with a CSVHeader header row. Timestamps may be RFC 3339
// or domain.DateTimeLayout (UTC).
func ReadCSV(r io.Reader) ([]domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(CSVHeader)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range CSVHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), col) {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrInvalidBars, i, header[i], col)
		}
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// WriteCSV writes bars with a CSVHeader header row.
func WriteCSV(w io.Writer, bars []domain.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseRecord(rec []string) (domain.Bar, error) {
	ts, err := parseTimestamp(rec[0])
	if err != nil {
		return domain.Bar{}, err
	}
	var vals [5]float64
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("parse %s: %w", CSVHeader[i+1], err)
		}
		vals[i] = v
	}
	return domain.Bar{
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(domain.DateTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", domain.ErrInvalidDate, s)
	}
	return ts, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
