// Package transform turns a validated RawRow into a CanonicalEvent: the only
// place in the pipeline that inspects untyped field-map shapes.
package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trailblazeapp/ride-ingest/internal/model"
)

// externalIDNamespace seeds the deterministic synthetic IDs minted for rows
// whose source markup carries no native ride/event ID (PNER, Facebook). Using
// UUIDv5 over (source, name, date) rather than a random UUID keeps the same
// row mapping to the same ExternalID across runs. The Store's upsert lookup
// does not use ExternalID; it matches on ride_id, then name and date.
var externalIDNamespace = uuid.NewSHA1(uuid.Nil, []byte("ride-ingest"))

// Error wraps a row that failed to transform after passing validation —
// typically a date or distance value in a shape the parser doesn't accept.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("transform: %s", e.Reason) }

var canadianProvinces = map[string]bool{
	"AB": true, "BC": true, "MB": true, "NB": true, "NL": true,
	"NS": true, "NT": true, "NU": true, "ON": true, "PE": true,
	"QC": true, "SK": true, "YT": true,
}

var distancePattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(miles?|km|intro)?\s*$`)

var multiDayKeyword = regexp.MustCompile(`(?i)\b(day|days|pioneer|multi)\b`)

var leadingDistanceNumber = regexp.MustCompile(`\b(\d+)\b`)

// Transformer converts RawRow to CanonicalEvent.
type Transformer struct{}

func New() *Transformer { return &Transformer{} }

// Transform maps one validated row from one source into a CanonicalEvent.
func (t *Transformer) Transform(source model.Source, row model.RawRow) (model.CanonicalEvent, error) {
	ev := model.CanonicalEvent{
		Source:       source,
		EventDetails: make(map[string]interface{}),
	}

	ev.Name = firstNonEmpty(row.GetString("rideName"), row.GetString("name"))

	dateStart, dateEnd, err := parseDateRange(row)
	if err != nil {
		return model.CanonicalEvent{}, &Error{Reason: err.Error()}
	}
	ev.DateStart = dateStart
	ev.DateEnd = dateEnd

	ev.Location = row.GetString("location")
	ev.Region = row.GetString("region")
	ev.City, ev.State, ev.Country = parseLocation(ev.Location, ev.Region)

	ev.Distances = parseDistances(row)
	ev.IsCanceled = boolField(row, "is_canceled")
	ev.HasIntroRide = boolField(row, "hasIntroRide") || hasIntroDistance(ev.Distances)

	rideDays, isMulti, isPioneer := inferMultiDay(ev.Name, dateStart, dateEnd, ev.Distances)
	ev.RideDays = rideDays
	ev.IsMultiDayEvent = isMulti
	ev.IsPioneerRide = isPioneer

	ev.RideManager = row.GetString("rideManager")
	ev.RideManagerContact = parseContact(row, ev.RideManager)
	if ev.RideManagerContact.Email != nil {
		ev.ManagerEmail = ev.RideManagerContact.Email
	}
	if ev.RideManagerContact.Phone != nil {
		ev.ManagerPhone = ev.RideManagerContact.Phone
	}

	ev.Website = row.GetString("website")
	ev.FlyerURL = row.GetString("flyerUrl")
	ev.MapLink = row.GetString("mapLink")
	ev.Directions = row.GetString("directions")
	ev.Judges = parseJudges(row)
	ev.Description = truncateDescription(row.GetString("description"))
	ev.Notes = row.GetString("notes")

	if rideID := row.GetString("rideID"); rideID != "" {
		ev.RideID = &rideID
	}
	if extID := row.GetString("externalId"); extID != "" {
		ev.ExternalID = &extID
	}

	if tag := row.GetString("tag"); tag != "" {
		ev.EventDetails["tag"] = tag
	}
	if len(ev.Judges) > 0 {
		controlJudges := make([]map[string]string, 0, len(ev.Judges))
		for _, j := range ev.Judges {
			controlJudges = append(controlJudges, map[string]string{"name": j.Name, "role": j.Role})
		}
		ev.EventDetails["control_judges"] = controlJudges
	}

	if ev.RideID == nil && ev.ExternalID == nil {
		seed := fmt.Sprintf("%s|%s|%s", source, ev.Name, dateStart.Format("2006-01-02"))
		extID := uuid.NewSHA1(externalIDNamespace, []byte(seed)).String()
		ev.ExternalID = &extID
	}

	return ev, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func boolField(row model.RawRow, key string) bool {
	v, ok := row.Get(key)
	if !ok {
		return false
	}
	return v.Kind == model.KindBool && v.Bool
}

// parseDateRange reads the row's date (and, for multi-day events, the last
// distance's date) into a start/end pair. ISO (YYYY-MM-DD) and US
// (MM/DD/YYYY) formats are accepted.
func parseDateRange(row model.RawRow) (time.Time, time.Time, error) {
	raw := row.GetString("date")
	if raw == "" {
		raw = row.GetString("date_start")
	}
	if raw == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("bad_date_format: no date field present")
	}

	start, err := parseDate(raw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad_date_format: %q: %w", raw, err)
	}

	end := start
	for _, d := range row.GetList("distances") {
		if d.Kind != model.KindMap {
			continue
		}
		dateStr := d.Map["date"].AsString()
		if dateStr == "" {
			continue
		}
		if dt, err := parseDate(dateStr); err == nil && dt.After(end) {
			end = dt
		}
	}

	return start, end, nil
}

func parseDate(raw string) (time.Time, error) {
	layouts := []string{"2006-01-02", "01/02/2006", "1/2/2006"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}

// parseLocation splits a "City, ST" or "City, Province, Country" location
// string into structured fields, inferring country from the Canadian
// province closed set, defaulting to USA otherwise.
func parseLocation(location, region string) (city, state, country string) {
	parts := strings.Split(location, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	switch len(parts) {
	case 0:
		return "", "", "USA"
	case 1:
		city = parts[0]
	default:
		city = parts[0]
		state = strings.ToUpper(parts[1])
	}

	if canadianProvinces[state] || (len(parts) > 2 && strings.EqualFold(parts[2], "Canada")) {
		country = "Canada"
	} else {
		country = "USA"
	}

	if state == "" && region != "" {
		state = region
	}

	return city, state, country
}

func parseDistances(row model.RawRow) []model.Distance {
	var out []model.Distance
	for _, d := range row.GetList("distances") {
		if d.Kind != model.KindMap {
			continue
		}
		distText := canonicalizeDistance(d.Map["distance"].AsString())
		if distText == "" {
			continue
		}
		var date time.Time
		if dt, err := parseDate(d.Map["date"].AsString()); err == nil {
			date = dt
		}
		out = append(out, model.Distance{
			DistanceText: distText,
			Date:         date,
			StartTime:    d.Map["startTime"].AsString(),
		})
	}
	return out
}

func canonicalizeDistance(raw string) string {
	m := distancePattern.FindStringSubmatch(raw)
	if m == nil {
		return strings.TrimSpace(raw)
	}
	unit := strings.ToLower(m[2])
	if unit == "" {
		unit = "miles"
	}
	return m[1] + " " + unit
}

// hasIntroDistance reports an intro ride either by an explicit "intro" unit
// or by a numeric distance of 15 miles or fewer, matching the original
// converter's short-distance heuristic.
func hasIntroDistance(distances []model.Distance) bool {
	for _, d := range distances {
		text := strings.ToLower(d.DistanceText)
		if strings.Contains(text, "intro") {
			return true
		}
		if m := leadingDistanceNumber.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n <= 15 {
				return true
			}
		}
	}
	return false
}

// inferMultiDay derives ride_days/is_multi_day_event/is_pioneer_ride from the
// date range, name keywords, and duplicate-distance detection. A pioneer
// ride always implies multi-day with at least 3 ride days.
func inferMultiDay(name string, start, end time.Time, distances []model.Distance) (rideDays int, isMulti bool, isPioneer bool) {
	rideDays = 1
	if !start.IsZero() && !end.IsZero() && end.After(start) {
		rideDays = int(end.Sub(start).Hours()/24) + 1
	}

	nameMatches := multiDayKeyword.MatchString(name)
	duplicateDistance := hasDuplicateDistance(distances)

	isMulti = rideDays > 1 || nameMatches || duplicateDistance
	isPioneer = strings.Contains(strings.ToLower(name), "pioneer")

	if isPioneer {
		isMulti = true
		if rideDays < 3 {
			rideDays = 3
		}
	}

	return rideDays, isMulti, isPioneer
}

func hasDuplicateDistance(distances []model.Distance) bool {
	seen := make(map[string]bool, len(distances))
	for _, d := range distances {
		if seen[d.DistanceText] {
			return true
		}
		seen[d.DistanceText] = true
	}
	return false
}

// parseContact reconciles the flat rideManager name with the nested contact
// map, preferring the nested name but falling back to the flat one so the
// two never disagree silently.
func parseContact(row model.RawRow, flatName string) model.Contact {
	contact := model.Contact{Name: flatName}

	v, ok := row.Get("rideManagerContact")
	if !ok || v.Kind != model.KindMap {
		return contact
	}

	if name := v.Map["name"].AsString(); name != "" {
		contact.Name = name
	}
	if email := v.Map["email"].AsString(); email != "" {
		contact.Email = &email
	}
	if phone := v.Map["phone"].AsString(); phone != "" {
		contact.Phone = &phone
	}

	return contact
}

func parseJudges(row model.RawRow) []model.Judge {
	var out []model.Judge
	for _, j := range row.GetList("controlJudges") {
		if j.Kind != model.KindMap {
			continue
		}
		name := j.Map["name"].AsString()
		if name == "" {
			continue
		}
		out = append(out, model.Judge{
			Name: name,
			Role: j.Map["role"].AsString(),
		})
	}
	return out
}

const maxDescriptionLen = 2000

func truncateDescription(desc string) string {
	if len(desc) <= maxDescriptionLen {
		return desc
	}
	return desc[:maxDescriptionLen] + "…"
}
