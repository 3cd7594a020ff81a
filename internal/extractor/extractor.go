// Package extractor turns cleaned, chunked HTML into RawRow values using a
// Source Driver's row selector and field extractor. A structural pass is
// always run; an optional AI-assisted pass may supplement it but never
// replaces it.
package extractor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/trailblazeapp/ride-ingest/internal/htmlutil"
	"github.com/trailblazeapp/ride-ingest/internal/model"
	"github.com/trailblazeapp/ride-ingest/internal/source"
)

// Error is returned when a run's chunks yield no rows at all: every chunk
// either failed to parse or matched no calendar row.
type Error struct {
	Source     string
	ChunkCount int
}

func (e *Error) Error() string {
	return fmt.Sprintf("extractor: all %d chunks failed for source %q", e.ChunkCount, e.Source)
}

// AIAssistant is the optional secondary extraction strategy. Implementations
// call out to a model to recover rows the structural pass missed; results are
// merged in, never substituted, and deduplicated by (name, date_start) before
// validation.
type AIAssistant interface {
	ExtractSupplemental(ctx context.Context, chunk string) ([]model.RawRow, error)
}

// Metrics counts what happened across a run's extraction stage.
type Metrics struct {
	ChunksProcessed int
	ChunksFailed    int
	EventsExtracted int
	SupplementedAdd int
}

// Extractor runs the structural pass over every chunk for one driver, with an
// optional AI-assisted supplement.
type Extractor struct {
	driver source.Driver
	ai     AIAssistant
	logger *zap.Logger
	metric Metrics
}

func New(driver source.Driver, ai AIAssistant, logger *zap.Logger) *Extractor {
	return &Extractor{driver: driver, ai: ai, logger: logger}
}

// Extract runs the structural extractor over each chunk, and if an
// AIAssistant is configured, supplements each chunk's result with rows the
// structural pass missed. It returns Error when chunks were given but none
// of them yielded a row.
func (e *Extractor) Extract(ctx context.Context, chunks []string) ([]model.RawRow, error) {
	var rows []model.RawRow
	failed := 0

	for _, chunk := range chunks {
		chunkRows, err := e.extractChunk(chunk)
		if err != nil {
			failed++
			e.logger.Warn("extractor: chunk failed", zap.Error(err))
			continue
		}
		e.metric.ChunksProcessed++
		rows = append(rows, chunkRows...)

		if e.ai != nil {
			supplemental, err := e.ai.ExtractSupplemental(ctx, chunk)
			if err != nil {
				e.logger.Warn("extractor: ai-assisted supplement failed", zap.Error(err))
				continue
			}
			added := dedupeAgainst(rows, supplemental)
			rows = append(rows, added...)
			e.metric.SupplementedAdd += len(added)
		}
	}

	e.metric.EventsExtracted = len(rows)
	e.metric.ChunksFailed = failed

	if len(chunks) > 0 && len(rows) == 0 {
		return nil, &Error{Source: e.driver.Name(), ChunkCount: len(chunks)}
	}

	return rows, nil
}

func (e *Extractor) extractChunk(chunk string) ([]model.RawRow, error) {
	doc, err := htmlutil.Parse(chunk)
	if err != nil {
		return nil, fmt.Errorf("extractor: parse chunk: %w", err)
	}

	rowNodes := htmlutil.FindAll(doc, e.driver.IsRow)
	rows := make([]model.RawRow, 0, len(rowNodes))
	for _, n := range rowNodes {
		rows = append(rows, e.driver.ExtractRow(n))
	}
	return rows, nil
}

// dedupeAgainst returns the subset of candidates not already present in
// existing, keyed on (rideName, date) as a stand-in for (name, date_start)
// before the Transformer has parsed either field.
func dedupeAgainst(existing []model.RawRow, candidates []model.RawRow) []model.RawRow {
	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		seen[rowKey(r)] = true
	}

	var out []model.RawRow
	for _, c := range candidates {
		k := rowKey(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

func rowKey(r model.RawRow) string {
	return r.GetString("rideName") + "|" + r.GetString("date")
}

func (e *Extractor) GetMetrics() Metrics { return e.metric }
