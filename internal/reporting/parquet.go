package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"strategy-lab/internal/domain"
)

// TrialRecordRow is the Parquet schema for trial exports.
type TrialRecordRow struct {
	StudyID        string   `parquet:"study_id"`
	TrialIndex     int64    `parquet:"trial_index"`
	Status         string   `parquet:"status"`
	Parameters     string   `parquet:"parameters"`
	InitialValue   float64  `parquet:"initial_value"`
	FinalValue     float64  `parquet:"final_value"`
	AbsoluteReturn float64  `parquet:"absolute_return"`
	RelativeReturn float64  `parquet:"relative_return"`
	SharpeRatio    *float64 `parquet:"sharpe_ratio,optional"`
	MaxDrawdown    float64  `parquet:"max_drawdown"`
	SQN            float64  `parquet:"sqn"`
	Trades         int64    `parquet:"trades"`
	Error          string   `parquet:"error"`
}

// BarRecordRow is the Parquet schema for bar log exports.
type BarRecordRow struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// WriteTrialsParquet writes trial records to a Parquet file.
func WriteTrialsParquet(path string, records []domain.TrialRecord) error {
	rows := make([]TrialRecordRow, len(records))
	for i, r := range records {
		rows[i] = TrialRecordRow{
			StudyID:        r.StudyID,
			TrialIndex:     int64(r.TrialIndex),
			Status:         string(r.Status),
			Parameters:     FormatParams(r.Parameters),
			InitialValue:   r.InitialPortfolioValue,
			FinalValue:     r.FinalPortfolioValue,
			AbsoluteReturn: r.AbsoluteReturn,
			RelativeReturn: r.RelativeReturn,
			SharpeRatio:    r.SharpeRatio,
			MaxDrawdown:    r.MaxDrawdown,
			SQN:            r.SystemQualityNumber,
			Trades:         int64(r.TradeCount),
			Error:          r.Error,
		}
	}
	if err := writeParquetFile(path, rows); err != nil {
		return fmt.Errorf("write trials parquet: %w", err)
	}
	return nil
}

// WriteBarsParquet writes a bar log to a Parquet file.
func WriteBarsParquet(path string, bars []domain.Bar) error {
	rows := make([]BarRecordRow, len(bars))
	for i, b := range bars {
		rows[i] = BarRecordRow{
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	if err := writeParquetFile(path, rows); err != nil {
		return fmt.Errorf("write bars parquet: %w", err)
	}
	return nil
}

// ReadTrialsParquet reads a file written by WriteTrialsParquet.
func ReadTrialsParquet(path string) ([]TrialRecordRow, error) {
	return parquet.ReadFile[TrialRecordRow](path)
}

// ReadBarsParquet reads a file written by WriteBarsParquet.
func ReadBarsParquet(path string) ([]BarRecordRow, error) {
	return parquet.ReadFile[BarRecordRow](path)
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}
