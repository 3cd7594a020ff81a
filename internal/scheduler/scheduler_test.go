package scheduler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trailblazeapp/ride-ingest/internal/scheduler"
)

func TestNew_InvalidExpressionErrors(t *testing.T) {
	_, err := scheduler.New("not a cron expression", func() {}, zap.NewNop())
	assert.Error(t, err)
}

func TestScheduler_RunsFnOnSchedule(t *testing.T) {
	fired := make(chan struct{}, 1)
	s, err := scheduler.New("@every 20ms", func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, zap.NewNop())
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled function never fired")
	}
}
