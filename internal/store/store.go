// Package store persists CanonicalEvents to Postgres via an idempotent
// upsert: lookup by (source, ride_id) first, falling back to
// (source, name, date_start::date).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/trailblazeapp/ride-ingest/internal/model"
)

// Error wraps any failure during an upsert attempt.
type Error struct {
	Event string
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("store: upsert %q: %v", e.Event, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Metrics counts what an upsert run did.
type Metrics struct {
	Added   int
	Updated int
	Skipped int
	Errors  int
}

// DB is the subset of *pgxpool.Pool the Store needs, narrowed to an
// interface so tests can substitute a fake without a live Postgres
// connection.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Store is the Postgres-backed Upserter.
type Store struct {
	pool   DB
	logger *zap.Logger
	metric Metrics
}

func New(pool DB, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// existingRow is the subset of columns the upsert needs to decide what to
// preserve on an update.
type existingRow struct {
	id                  string
	eventDetails        map[string]interface{}
	geocodingAttempted  bool
	createdAt           time.Time
}

// Outcome reports whether an Upsert call inserted a new row or updated an
// existing one, so callers (e.g. the geocode-needed notifier) can react only
// to the transition that matters to them.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
)

// Upsert looks up ev by (source, ride_id), falling back to
// (source, name, date_start::date), and inserts or updates accordingly.
// Non-null incoming fields overwrite; nulls never clear an existing value.
// event_details is merged shallowly. geocoding_attempted is set false on
// insert and left untouched on update.
func (s *Store) Upsert(ctx context.Context, ev model.CanonicalEvent) (Outcome, error) {
	existing, err := s.find(ctx, ev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		s.metric.Errors++
		return 0, &Error{Event: ev.Name, Err: err}
	}

	if err == nil {
		if err := s.update(ctx, ev, existing); err != nil {
			s.metric.Errors++
			return 0, &Error{Event: ev.Name, Err: err}
		}
		s.metric.Updated++
		return OutcomeUpdated, nil
	}

	if err := s.insert(ctx, ev); err != nil {
		s.metric.Errors++
		return 0, &Error{Event: ev.Name, Err: err}
	}
	s.metric.Added++
	return OutcomeInserted, nil
}

func (s *Store) find(ctx context.Context, ev model.CanonicalEvent) (*existingRow, error) {
	if ev.RideID != nil {
		row, err := s.findByRideID(ctx, ev.Source, *ev.RideID)
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}
	return s.findByNameDate(ctx, ev.Source, ev.Name, ev.DateStart)
}

func (s *Store) findByRideID(ctx context.Context, source model.Source, rideID string) (*existingRow, error) {
	const q = `
		SELECT id, event_details, geocoding_attempted, created_at
		FROM ride_events
		WHERE source = $1 AND ride_id = $2`
	return s.scanExisting(ctx, q, source, rideID)
}

func (s *Store) findByNameDate(ctx context.Context, source model.Source, name string, dateStart time.Time) (*existingRow, error) {
	const q = `
		SELECT id, event_details, geocoding_attempted, created_at
		FROM ride_events
		WHERE source = $1 AND name = $2 AND date_start::date = $3::date`
	return s.scanExisting(ctx, q, source, name, dateStart)
}

func (s *Store) scanExisting(ctx context.Context, query string, args ...interface{}) (*existingRow, error) {
	var row existingRow
	var detailsRaw []byte

	err := s.pool.QueryRow(ctx, query, args...).Scan(&row.id, &detailsRaw, &row.geocodingAttempted, &row.createdAt)
	if err != nil {
		return nil, err
	}

	if len(detailsRaw) > 0 {
		if err := json.Unmarshal(detailsRaw, &row.eventDetails); err != nil {
			return nil, fmt.Errorf("decode event_details: %w", err)
		}
	}
	return &row, nil
}

func (s *Store) insert(ctx context.Context, ev model.CanonicalEvent) error {
	details, err := json.Marshal(ev.EventDetails)
	if err != nil {
		return fmt.Errorf("encode event_details: %w", err)
	}

	const q = `
		INSERT INTO ride_events (
			source, external_id, ride_id, name, date_start, date_end,
			location, region, city, state, country, latitude, longitude,
			is_canceled, is_verified, has_intro_ride, is_multi_day_event,
			is_pioneer_ride, ride_days, geocoding_attempted,
			ride_manager, manager_email, manager_phone,
			website, flyer_url, map_link, directions, description, notes,
			distances, judges,
			event_details, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
			$19,false,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,now(),now()
		)`

	_, err = s.pool.Exec(ctx, q,
		ev.Source, ev.ExternalID, ev.RideID, ev.Name, ev.DateStart, ev.DateEnd,
		ev.Location, ev.Region, ev.City, ev.State, ev.Country, ev.Latitude, ev.Longitude,
		ev.IsCanceled, ev.IsVerified, ev.HasIntroRide, ev.IsMultiDayEvent,
		ev.IsPioneerRide, ev.RideDays,
		ev.RideManager, ev.ManagerEmail, ev.ManagerPhone,
		ev.Website, ev.FlyerURL, ev.MapLink, ev.Directions, ev.Description, ev.Notes,
		distanceTexts(ev.Distances), judgeLabels(ev.Judges),
		details,
	)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, ev model.CanonicalEvent, existing *existingRow) error {
	merged := mergeDetails(existing.eventDetails, ev.EventDetails)
	details, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode merged event_details: %w", err)
	}

	const q = `
		UPDATE ride_events SET
			external_id = COALESCE($2, external_id),
			ride_id = COALESCE($3, ride_id),
			name = COALESCE(NULLIF($4, ''), name),
			date_start = COALESCE($5, date_start),
			date_end = COALESCE($6, date_end),
			location = COALESCE(NULLIF($7, ''), location),
			region = COALESCE(NULLIF($8, ''), region),
			city = COALESCE(NULLIF($9, ''), city),
			state = COALESCE(NULLIF($10, ''), state),
			country = COALESCE(NULLIF($11, ''), country),
			latitude = COALESCE($12, latitude),
			longitude = COALESCE($13, longitude),
			is_canceled = $14,
			is_verified = $15,
			has_intro_ride = $16,
			is_multi_day_event = $17,
			is_pioneer_ride = $18,
			ride_days = $19,
			ride_manager = COALESCE(NULLIF($20, ''), ride_manager),
			manager_email = COALESCE($21, manager_email),
			manager_phone = COALESCE($22, manager_phone),
			website = COALESCE(NULLIF($23, ''), website),
			flyer_url = COALESCE(NULLIF($24, ''), flyer_url),
			map_link = COALESCE(NULLIF($25, ''), map_link),
			directions = COALESCE(NULLIF($26, ''), directions),
			description = COALESCE(NULLIF($27, ''), description),
			notes = COALESCE(NULLIF($28, ''), notes),
			distances = $29,
			judges = $30,
			event_details = $31,
			updated_at = now()
		WHERE id = $1`

	_, err = s.pool.Exec(ctx, q,
		existing.id, ev.ExternalID, ev.RideID, ev.Name, ev.DateStart, ev.DateEnd,
		ev.Location, ev.Region, ev.City, ev.State, ev.Country, ev.Latitude, ev.Longitude,
		ev.IsCanceled, ev.IsVerified, ev.HasIntroRide, ev.IsMultiDayEvent,
		ev.IsPioneerRide, ev.RideDays,
		ev.RideManager, ev.ManagerEmail, ev.ManagerPhone,
		ev.Website, ev.FlyerURL, ev.MapLink, ev.Directions, ev.Description, ev.Notes,
		distanceTexts(ev.Distances), judgeLabels(ev.Judges),
		details,
	)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// distanceTexts flattens an event's distances to their canonical text form
// for the distances text[] column.
func distanceTexts(distances []model.Distance) []string {
	out := make([]string, 0, len(distances))
	for _, d := range distances {
		out = append(out, d.DistanceText)
	}
	return out
}

// judgeLabels flattens an event's control judges to "role: name" strings
// (or bare name when no role is given) for the judges text[] column.
func judgeLabels(judges []model.Judge) []string {
	out := make([]string, 0, len(judges))
	for _, j := range judges {
		if j.Role != "" {
			out = append(out, fmt.Sprintf("%s: %s", j.Role, j.Name))
			continue
		}
		out = append(out, j.Name)
	}
	return out
}

// mergeDetails shallow-merges incoming over existing, so fields neither side
// set stay absent rather than being overwritten with nil.
func mergeDetails(existing, incoming map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

func (s *Store) GetMetrics() Metrics { return s.metric }
