// Package notify publishes an outbox-style event whenever the Upserter
// inserts a row or clears an existing row's coordinates, so the external
// geocoding collaborator knows to pick it up. It is a no-op when no NATS
// connection is configured.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/trailblazeapp/ride-ingest/internal/model"
)

const subjectGeocodeNeeded = "ride.geocode_needed"

// GeocodeNeededEvent is the payload published to subjectGeocodeNeeded.
type GeocodeNeededEvent struct {
	Source   string `json:"source"`
	RideID   string `json:"ride_id,omitempty"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// Publisher wraps a NATS JetStream connection. A nil *Publisher (returned by
// New when url is empty) makes Publish a safe no-op.
type Publisher struct {
	js     nats.JetStreamContext
	conn   *nats.Conn
	logger *zap.Logger
}

// New connects to NATS and opens a JetStream context. If url is empty, it
// returns (nil, nil): geocode notifications are simply disabled for this
// run.
func New(url string, logger *zap.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}

	conn, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("notify: connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: init jetstream: %w", err)
	}

	logger.Info("notify: nats jetstream connected", zap.String("url", url))
	return &Publisher{js: js, conn: conn, logger: logger}, nil
}

// PublishGeocodeNeeded emits a ride.geocode_needed event for ev. It is a
// no-op if p is nil (geocoding notifications disabled).
func (p *Publisher) PublishGeocodeNeeded(ev model.CanonicalEvent) error {
	if p == nil {
		return nil
	}

	evt := GeocodeNeededEvent{
		Source:   string(ev.Source),
		Name:     ev.Name,
		Location: ev.Location,
	}
	if ev.RideID != nil {
		evt.RideID = *ev.RideID
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}

	if _, err := p.js.Publish(subjectGeocodeNeeded, data); err != nil {
		p.logger.Warn("notify: publish failed", zap.Error(err))
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}

// ShouldNotify reports whether ev just became eligible for geocoding: it was
// newly inserted (wasInsert), or its coordinates are unset despite a prior
// geocoding attempt having cleared them.
func ShouldNotify(ev model.CanonicalEvent, wasInsert bool) bool {
	if wasInsert {
		return true
	}
	return ev.GeocodingAttempted && ev.Latitude == nil && ev.Longitude == nil
}

// Close drains and closes the underlying connection. Safe to call on nil.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
