// Package pipeline drives one source through its full run: FETCH, CLEAN,
// CHUNK, EXTRACT, VALIDATE, TRANSFORM, UPSERT, VERIFY, DONE — failing to
// FAIL on any stage error, with ctx cancellation observed between stages.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/trailblazeapp/ride-ingest/internal/cache"
	"github.com/trailblazeapp/ride-ingest/internal/chunker"
	"github.com/trailblazeapp/ride-ingest/internal/extractor"
	"github.com/trailblazeapp/ride-ingest/internal/fetcher"
	"github.com/trailblazeapp/ride-ingest/internal/htmlclean"
	"github.com/trailblazeapp/ride-ingest/internal/metrics"
	"github.com/trailblazeapp/ride-ingest/internal/model"
	"github.com/trailblazeapp/ride-ingest/internal/notify"
	"github.com/trailblazeapp/ride-ingest/internal/source"
	"github.com/trailblazeapp/ride-ingest/internal/store"
	"github.com/trailblazeapp/ride-ingest/internal/transform"
	"github.com/trailblazeapp/ride-ingest/internal/validate"
)

// State names the Orchestrator's current stage, surfaced in logs for
// operators diagnosing a stuck or failed run.
type State string

const (
	StateInit      State = "INIT"
	StateFetch     State = "FETCH"
	StateClean     State = "CLEAN"
	StateChunk     State = "CHUNK"
	StateExtract   State = "EXTRACT"
	StateValidate  State = "VALIDATE"
	StateTransform State = "TRANSFORM"
	StateUpsert    State = "UPSERT"
	StateVerify    State = "VERIFY"
	StateDone      State = "DONE"
	StateFail      State = "FAIL"
)

// Deps bundles every collaborator one run needs. Callers construct a fresh
// Deps per source so each pipeline owns its own Fetcher/Cache/Metrics.
type Deps struct {
	Fetcher    *fetcher.Fetcher
	Cache      *cache.Cache
	Store      *store.Store
	Notifier   *notify.Publisher
	AI         extractor.AIAssistant
	ChunkCfg   chunker.Config
	MetricsDir string
	Logger     *zap.Logger
}

// Orchestrator runs one Driver's pipeline end to end.
type Orchestrator struct {
	driver source.Driver
	deps   Deps
	state  State
}

func New(driver source.Driver, deps Deps) *Orchestrator {
	return &Orchestrator{driver: driver, deps: deps, state: StateInit}
}

func (o *Orchestrator) State() State { return o.state }

// Run executes the full pipeline for one source. A non-nil error always
// means the Orchestrator ended in StateFail; metrics are persisted either
// way and returned so the caller can report on the run.
func (o *Orchestrator) Run(ctx context.Context) (metrics.RunMetrics, error) {
	collector := metrics.New(o.driver.Name(), o.deps.MetricsDir, o.deps.Logger)
	status := "success"

	err := o.run(ctx, collector)
	if err != nil {
		status = "failed"
		o.state = StateFail
		o.deps.Logger.Error("pipeline: run failed",
			zap.String("source", o.driver.Name()),
			zap.String("state", string(o.state)),
			zap.Error(err))
	}

	collector.ClassifyExtractionLoss()
	finalMetrics := collector.Finish(status)
	if perr := collector.Persist(); perr != nil {
		o.deps.Logger.Warn("pipeline: failed to persist metrics", zap.Error(perr))
	}

	return finalMetrics, err
}

func (o *Orchestrator) run(ctx context.Context, collector *metrics.Collector) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o.state = StateFetch
	payload, err := o.driver.FetchPayload(ctx, o.deps.Fetcher, o.deps.Cache)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	o.state = StateClean
	doc, err := htmlclean.Clean(payload, o.driver.Name(), o.driver.IsRow)
	if err != nil {
		return fmt.Errorf("clean: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	o.state = StateChunk
	chunks := chunker.Chunk(doc, o.driver.IsRow, o.deps.ChunkCfg)

	if err := ctx.Err(); err != nil {
		return err
	}
	o.state = StateExtract
	ext := extractor.New(o.driver, o.deps.AI, o.deps.Logger)
	rows, err := ext.Extract(ctx, chunks)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	extMetrics := ext.GetMetrics()
	collector.Metrics().RowsFetched = extMetrics.EventsExtracted + extMetrics.ChunksFailed
	collector.Metrics().ChunksProcessed = extMetrics.ChunksProcessed
	collector.Metrics().ChunksFailed = extMetrics.ChunksFailed
	collector.Metrics().EventsExtracted = extMetrics.EventsExtracted

	if err := ctx.Err(); err != nil {
		return err
	}
	o.state = StateValidate
	validator := validate.New(o.deps.Logger)
	valResult := validator.ValidateAll(rows)
	collector.Metrics().EventsValidated = len(valResult.Valid)
	collector.Metrics().EventsRejected = len(valResult.Rejected)
	collector.Metrics().ValidationErrorsByKind = toStringIntMap(valResult.CountsByKind)

	if err := ctx.Err(); err != nil {
		return err
	}
	o.state = StateTransform
	transformer := transform.New()
	var events []model.CanonicalEvent
	for _, row := range valResult.Valid {
		ev, err := transformer.Transform(o.driver.Source(), row)
		if err != nil {
			o.deps.Logger.Warn("pipeline: transform failed, dropping row", zap.Error(err))
			collector.Metrics().EventsRejected++
			continue
		}
		events = append(events, ev)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	o.state = StateUpsert
	for _, ev := range events {
		outcome, err := o.deps.Store.Upsert(ctx, ev)
		if err != nil {
			o.deps.Logger.Error("pipeline: upsert failed", zap.String("event", ev.Name), zap.Error(err))
			collector.Metrics().UpsertErrors++
			continue
		}
		switch outcome {
		case store.OutcomeInserted:
			collector.Metrics().EventsAdded++
		case store.OutcomeUpdated:
			collector.Metrics().EventsUpdated++
		}

		if notify.ShouldNotify(ev, outcome == store.OutcomeInserted) {
			if err := o.deps.Notifier.PublishGeocodeNeeded(ev); err != nil {
				o.deps.Logger.Warn("pipeline: geocode notification failed", zap.Error(err))
			}
		}
	}

	o.state = StateVerify
	collector.SampleMemory()

	o.state = StateDone
	return nil
}

func toStringIntMap(m map[validate.Kind]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}
