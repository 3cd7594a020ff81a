// Package metrics aggregates per-run counters and timing into RunMetrics,
// persists them as JSON, and classifies extraction loss.
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// LossSeverity classifies how far extraction undershot what was expected.
type LossSeverity string

const (
	LossNone LossSeverity = "none"
	LossWarn LossSeverity = "warn"
	LossErr  LossSeverity = "error"
)

// RunMetrics is the aggregate record for one source's run.
type RunMetrics struct {
	Source    string    `json:"source"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	RowsFetched      int `json:"rows_fetched"`
	ChunksProcessed  int `json:"chunks_processed"`
	ChunksFailed     int `json:"chunks_failed"`
	EventsExtracted  int `json:"events_extracted"`
	EventsValidated  int `json:"events_validated"`
	EventsRejected   int `json:"events_rejected"`
	EventsAdded      int `json:"events_added"`
	EventsUpdated    int `json:"events_updated"`
	EventsSkipped    int `json:"events_skipped"`
	UpsertErrors     int `json:"upsert_errors"`

	ValidationErrorsByKind map[string]int `json:"validation_errors_by_kind,omitempty"`

	ExtractionLossPercent float64      `json:"extraction_loss_percent"`
	ExtractionLoss        LossSeverity `json:"extraction_loss_severity"`

	PeakMemoryBytes uint64 `json:"peak_memory_bytes"`

	Status string `json:"status"`
}

// Collector builds up a RunMetrics value across a run and persists it.
type Collector struct {
	metrics RunMetrics
	dir     string
	logger  *zap.Logger
}

func New(source, dir string, logger *zap.Logger) *Collector {
	return &Collector{
		metrics: RunMetrics{Source: source, StartedAt: now()},
		dir:     dir,
		logger:  logger,
	}
}

// now is a thin wrapper so the only non-deterministic time call in this
// package is visible at one call site.
func now() time.Time { return time.Now() }

func (c *Collector) Metrics() *RunMetrics { return &c.metrics }

// SampleMemory records the current heap size if it exceeds the running peak.
func (c *Collector) SampleMemory() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapAlloc > c.metrics.PeakMemoryBytes {
		c.metrics.PeakMemoryBytes = m.HeapAlloc
	}
}

// ClassifyExtractionLoss compares rows fetched against events extracted and
// sets ExtractionLossPercent/ExtractionLoss. Per policy, loss never fails
// the run — it is logged at WARN, escalating to ERROR at >10% loss.
func (c *Collector) ClassifyExtractionLoss() {
	if c.metrics.RowsFetched == 0 {
		c.metrics.ExtractionLoss = LossNone
		return
	}

	lost := c.metrics.RowsFetched - c.metrics.EventsExtracted
	if lost <= 0 {
		c.metrics.ExtractionLoss = LossNone
		c.metrics.ExtractionLossPercent = 0
		return
	}

	pct := float64(lost) / float64(c.metrics.RowsFetched) * 100
	c.metrics.ExtractionLossPercent = pct

	switch {
	case pct > 10:
		c.metrics.ExtractionLoss = LossErr
		c.logger.Error("metrics: extraction loss exceeds threshold",
			zap.Float64("loss_percent", pct))
	case pct > 0:
		c.metrics.ExtractionLoss = LossWarn
		c.logger.Warn("metrics: extraction loss detected",
			zap.Float64("loss_percent", pct))
	}
}

// Finish stamps EndedAt/Status and returns the final record.
func (c *Collector) Finish(status string) RunMetrics {
	c.metrics.EndedAt = now()
	c.metrics.Status = status
	return c.metrics
}

// Persist writes the metrics as JSON to <dir>/<source>_<timestamp>.json and
// logs a one-line textual summary.
func (c *Collector) Persist() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("metrics: mkdir: %w", err)
	}

	filename := fmt.Sprintf("%s_%d.json", c.metrics.Source, c.metrics.EndedAt.Unix())
	path := filepath.Join(c.dir, filename)

	data, err := json.MarshalIndent(c.metrics, "", "  ")
	if err != nil {
		return fmt.Errorf("metrics: marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}

	c.logger.Info("metrics: run summary",
		zap.String("source", c.metrics.Source),
		zap.String("status", c.metrics.Status),
		zap.Int("events_added", c.metrics.EventsAdded),
		zap.Int("events_updated", c.metrics.EventsUpdated),
		zap.Int("events_rejected", c.metrics.EventsRejected),
		zap.Float64("extraction_loss_percent", c.metrics.ExtractionLossPercent),
		zap.String("metrics_file", path),
	)

	return nil
}

// Summary returns the persisted RunMetrics files under dir whose EndedAt is
// not before since, for the `ingest metrics summary` subcommand.
func Summary(dir string, since time.Time) ([]RunMetrics, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("metrics: read dir: %w", err)
	}

	var out []RunMetrics
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}

		var rm RunMetrics
		if err := json.Unmarshal(data, &rm); err != nil {
			continue
		}
		if rm.EndedAt.Before(since) {
			continue
		}
		out = append(out, rm)
	}
	return out, nil
}
