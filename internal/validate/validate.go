// Package validate enforces the required-field invariants a RawRow must
// satisfy before the Transformer accepts it, without mutating the row.
package validate

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trailblazeapp/ride-ingest/internal/model"
)

// Kind classifies why a row was rejected.
type Kind string

const (
	KindMissingName     Kind = "missing_name"
	KindMissingDate     Kind = "missing_date"
	KindMissingLocation Kind = "missing_location"
	KindBadDateFormat   Kind = "bad_date_format"
	KindShapeError      Kind = "shape_error"
)

// Error reports one row's rejection.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validate: %s: %s", e.Kind, e.Detail)
}

// Result is the outcome of validating one batch of rows.
type Result struct {
	Valid        []model.RawRow
	Rejected     []RejectedRow
	CountsByKind map[Kind]int
}

// RejectedRow pairs a row with why it was thrown out.
type RejectedRow struct {
	Row model.RawRow
	Err *Error
}

// Validator checks a row has the minimal shape the Transformer needs: a
// name, a parseable-looking date, a location, and an implicit source (always
// present, since the driver stamps it).
type Validator struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Validator {
	return &Validator{logger: logger}
}

// ValidateAll checks every row, separating the valid ones from the rejected
// ones, and logs a breakdown when rejections exceed a handful — useful when
// a source changes its markup and every row starts failing the same way.
func (v *Validator) ValidateAll(rows []model.RawRow) Result {
	res := Result{CountsByKind: make(map[Kind]int)}

	for _, row := range rows {
		if err := v.validateOne(row); err != nil {
			res.Rejected = append(res.Rejected, RejectedRow{Row: row, Err: err})
			res.CountsByKind[err.Kind]++
			continue
		}
		res.Valid = append(res.Valid, row)
	}

	if len(res.Rejected) > 5 {
		v.logBreakdown(res)
	}

	return res
}

func (v *Validator) validateOne(row model.RawRow) *Error {
	name := row.GetString("rideName")
	if name == "" {
		name = row.GetString("name")
	}
	if name == "" {
		return &Error{Kind: KindMissingName, Detail: "rideName/name is empty"}
	}

	date := row.GetString("date")
	if date == "" {
		date = row.GetString("date_start")
	}
	if date == "" {
		return &Error{Kind: KindMissingDate, Detail: "date/date_start is empty"}
	}
	parsed := false
	for _, layout := range []string{"2006-01-02", "01/02/2006", "1/2/2006"} {
		if _, err := time.Parse(layout, strings.TrimSpace(date)); err == nil {
			parsed = true
			break
		}
	}
	if !parsed {
		return &Error{Kind: KindBadDateFormat, Detail: fmt.Sprintf("unrecognized date %q", date)}
	}

	location := row.GetString("location")
	if location == "" {
		return &Error{Kind: KindMissingLocation, Detail: "location is empty"}
	}

	if v, ok := row.Get("distances"); ok && v.Kind != model.KindList && v.Kind != model.KindNil {
		return &Error{Kind: KindShapeError, Detail: "distances is not a list"}
	}

	return nil
}

// logBreakdown logs a rejection-by-kind summary, so a batch of many
// rejections shows up as one structured line instead of one per row.
func (v *Validator) logBreakdown(res Result) {
	fields := make([]zap.Field, 0, len(res.CountsByKind)+1)
	fields = append(fields, zap.Int("total_rejected", len(res.Rejected)))
	for kind, count := range res.CountsByKind {
		fields = append(fields, zap.Int(string(kind), count))
	}
	v.logger.Warn("validate: rejection breakdown", fields...)
}
