package storage

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/johnayoung/go-tick-collector/internal/models"
)

// FallbackWriter serializes unflushed bar batches to local files when the
// time-series store is unreachable. One file is written per contract per
// flush attempt, named with a timestamp, under a per-contract directory.
// Writes are best-effort: callers log returned errors but do not retry.
type FallbackWriter struct {
	dir    string
	logger *slog.Logger
}

// NewFallbackWriter creates a fallback writer rooted at dir.
func NewFallbackWriter(dir string, logger *slog.Logger) *FallbackWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackWriter{dir: dir, logger: logger}
}

// Dir returns the writer's root directory.
func (w *FallbackWriter) Dir() string {
	return w.dir
}

// fallbackHeader is the column layout of fallback batch files.
var fallbackHeader = []string{
	"timestamp", "symbol", "contract", "exchange",
	"open", "high", "low", "close",
	"volume", "tick_count", "vwap", "bid", "ask", "spread",
	"data_quality_score", "is_regular_hours",
}

// WriteBatch persists a batch of bars for one contract as a CSV file and
// returns the file path. The file name carries the wall-clock time of the
// flush attempt plus a short unique suffix so two attempts within the same
// second never collide.
func (w *FallbackWriter) WriteBatch(contract string, bars []models.SecondBar) (string, error) {
	if len(bars) == 0 {
		return "", nil
	}

	dir := filepath.Join(w.dir, contract)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create fallback directory %s: %w", dir, err)
	}

	name := fmt.Sprintf("seconds_%s_%s.csv",
		time.Now().UTC().Format("20060102_150405"),
		uuid.NewString()[:8])
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create fallback file %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(fallbackHeader); err != nil {
		return path, fmt.Errorf("failed to write fallback header: %w", err)
	}

	for i := range bars {
		bar := &bars[i]
		record := []string{
			bar.Timestamp.UTC().Format(time.RFC3339),
			bar.Symbol,
			bar.Contract,
			bar.Exchange,
			bar.Open.String(),
			bar.High.String(),
			bar.Low.String(),
			bar.Close.String(),
			strconv.FormatInt(bar.Volume, 10),
			strconv.Itoa(bar.TickCount),
			bar.VWAP.String(),
			optionalDecimal(bar.Bid),
			optionalDecimal(bar.Ask),
			optionalDecimal(bar.Spread),
			strconv.FormatFloat(bar.QualityScore, 'f', -1, 64),
			strconv.FormatBool(bar.IsRegularHours),
		}
		if err := cw.Write(record); err != nil {
			return path, fmt.Errorf("failed to write fallback record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return path, fmt.Errorf("failed to flush fallback file %s: %w", path, err)
	}

	w.logger.Warn("saved bar batch to fallback storage",
		"contract", contract,
		"bars", len(bars),
		"path", path)

	return path, nil
}

func optionalDecimal(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
