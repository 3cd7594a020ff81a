package pipeline_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trailblazeapp/ride-ingest/internal/cache"
	"github.com/trailblazeapp/ride-ingest/internal/chunker"
	"github.com/trailblazeapp/ride-ingest/internal/fetcher"
	"github.com/trailblazeapp/ride-ingest/internal/pipeline"
	"github.com/trailblazeapp/ride-ingest/internal/source/aerc"
	"github.com/trailblazeapp/ride-ingest/internal/store"
)

const samplePayload = `<div class="calendar-content">
	<div class="calendarRow" data-ride-id="111">
		<div class="rideName">Fort Valley Fling</div>
		<div class="date">2026-04-18</div>
		<div class="region">Virginia</div>
		<div class="location">Fort Valley, VA</div>
		<div class="rideManager">Jane Doe</div>
	</div>
	<div class="calendarRow" data-ride-id="222">
		<div class="rideName">Biltmore Challenge</div>
		<div class="date">2026-05-02</div>
		<div class="region">North Carolina</div>
		<div class="location">Asheville, NC</div>
		<div class="rideManager">John Roe</div>
	</div>
	<div class="calendarRow">
		<div class="rideName"></div>
		<div class="date"></div>
	</div>
</div>`

// fakeDriver reuses aerc's row selector/extractor but serves a fixed payload,
// so the pipeline test never performs real network I/O.
type fakeDriver struct {
	*aerc.Driver
	payload []byte
}

func (f *fakeDriver) FetchPayload(ctx context.Context, fe *fetcher.Fetcher, c *cache.Cache) ([]byte, error) {
	return f.payload, nil
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{Driver: aerc.New(), payload: []byte(samplePayload)}
}

type fakeDB struct {
	execCount int
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return &missRow{}
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execCount++
	return pgconn.CommandTag{}, nil
}

type missRow struct{}

func (m *missRow) Scan(dest ...interface{}) error { return pgx.ErrNoRows }

func TestOrchestrator_RunEndToEnd(t *testing.T) {
	logger := zap.NewNop()
	db := &fakeDB{}
	s := store.New(db, logger)

	deps := pipeline.Deps{
		MetricsDir: t.TempDir(),
		Logger:     logger,
		ChunkCfg:   chunker.Config{InitialSize: 10000},
		Store:      s,
	}

	orch := pipeline.New(newFakeDriver(), deps)
	runMetrics, err := orch.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, pipeline.StateDone, orch.State())
	assert.Equal(t, "success", runMetrics.Status)
	assert.Equal(t, 3, runMetrics.EventsExtracted, "structural extraction pulls all three rows, blank one included")
	assert.Equal(t, 2, runMetrics.EventsValidated, "the blank row is dropped at validation, not extraction")
	assert.Equal(t, 2, runMetrics.EventsAdded)
	assert.Equal(t, 2, db.execCount)
}

func TestOrchestrator_RunFailsWhenCleanFindsNoRows(t *testing.T) {
	logger := zap.NewNop()
	db := &fakeDB{}
	s := store.New(db, logger)

	deps := pipeline.Deps{
		MetricsDir: t.TempDir(),
		Logger:     logger,
		ChunkCfg:   chunker.Config{InitialSize: 10000},
		Store:      s,
	}

	orch := pipeline.New(&fakeDriver{Driver: aerc.New(), payload: nil}, deps)
	_, err := orch.Run(context.Background())

	// An empty payload parses to a document with zero matching rows, which
	// htmlclean surfaces as NoRowsFoundError, failing the run at CLEAN.
	require.Error(t, err)
	assert.Equal(t, pipeline.StateFail, orch.State())
}

func TestOrchestrator_RunRespectsContextCancellation(t *testing.T) {
	logger := zap.NewNop()
	db := &fakeDB{}
	s := store.New(db, logger)

	deps := pipeline.Deps{
		MetricsDir: t.TempDir(),
		Logger:     logger,
		ChunkCfg:   chunker.Config{InitialSize: 10000},
		Store:      s,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := pipeline.New(newFakeDriver(), deps)
	_, err := orch.Run(ctx)

	require.Error(t, err)
	assert.Equal(t, pipeline.StateFail, orch.State())
	assert.Equal(t, 0, db.execCount, "canceled context must stop the pipeline before any upsert")
}
