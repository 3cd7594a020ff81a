// Package aerc is the Source Driver concretion for the American Endurance
// Ride Conference calendar: it knows AERC's two-step fetch
// (season-id discovery, then a POST to the admin-ajax endpoint) and how to
// pull AERC's field set out of one calendarRow node.
package aerc

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/trailblazeapp/ride-ingest/internal/cache"
	"github.com/trailblazeapp/ride-ingest/internal/fetcher"
	"github.com/trailblazeapp/ride-ingest/internal/htmlutil"
	"github.com/trailblazeapp/ride-ingest/internal/model"
	"github.com/trailblazeapp/ride-ingest/internal/source"
)

const (
	calendarURL = "https://aerc.org/calendar"
	ajaxURL     = "https://aerc.org/wp-admin/admin-ajax.php"
)

// Driver is the AERC Source Driver.
type Driver struct{}

// New constructs the AERC driver. It has no state of its own — Fetcher and
// Cache are passed in per-call rather than held as driver state.
func New() *Driver { return &Driver{} }

var _ source.Driver = (*Driver)(nil)

func (d *Driver) Source() model.Source { return model.SourceAERC }
func (d *Driver) Name() string         { return "aerc" }

// FetchPayload extracts the current/next season IDs from the calendar page,
// then POSTs the admin-ajax calendar form and returns its raw (possibly
// JSON-wrapped) response body.
func (d *Driver) FetchPayload(ctx context.Context, f *fetcher.Fetcher, c *cache.Cache) ([]byte, error) {
	seasonIDs, err := d.extractSeasonIDs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("aerc: extract season ids: %w", err)
	}
	if len(seasonIDs) == 0 {
		return nil, fmt.Errorf("aerc: no season ids found on calendar page")
	}

	cacheKey := "calendar_html_" + strings.Join(seasonIDs, "_")
	if cached, hit := c.Get(cacheKey); hit {
		return cached, nil
	}

	form := url.Values{}
	form.Set("action", "aerc_calendar_form")
	form.Set("calendar", "calendar")
	form.Add("country[]", "United States")
	form.Add("country[]", "Canada")
	form.Set("span[]", "#cal-span-season")
	for _, id := range seasonIDs {
		form.Add("season[]", id)
	}
	form.Set("distance[]", "any")

	body, err := f.Do(ctx, fetcher.Request{
		Method: "POST",
		URL:    ajaxURL,
		Body:   form,
	})
	if err != nil {
		return nil, fmt.Errorf("aerc: fetch calendar html: %w", err)
	}

	if err := c.Set(cacheKey, body); err != nil {
		// Non-fatal: a cache write failure should not abort
		// the run, the payload we already have is still usable.
		_ = err
	}

	return body, nil
}

// extractSeasonIDs fetches the public calendar page and reads the first two
// hidden `input[name="season[]"]` values.
func (d *Driver) extractSeasonIDs(ctx context.Context, f *fetcher.Fetcher) ([]string, error) {
	body, err := f.Do(ctx, fetcher.Request{Method: "GET", URL: calendarURL})
	if err != nil {
		return nil, err
	}

	doc, err := htmlutil.Parse(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar page: %w", err)
	}

	inputs := htmlutil.FindAll(doc, func(n *html.Node) bool {
		if n.Data != "input" {
			return false
		}
		name, _ := htmlutil.Attr(n, "name")
		return name == "season[]"
	})

	var ids []string
	for _, in := range inputs {
		if v, ok := htmlutil.Attr(in, "value"); ok && v != "" {
			ids = append(ids, v)
		}
		if len(ids) == 2 {
			break
		}
	}
	return ids, nil
}

// IsRow recognises AERC's calendarRow container divs.
func (d *Driver) IsRow(n *html.Node) bool {
	return n.Data == "div" && htmlutil.HasClass(n, "calendarRow")
}

// ExtractRow pulls AERC's field set (schema.py's AERC_EVENT_SCHEMA shape) out
// of one calendarRow node using its documented sub-element classes.
func (d *Driver) ExtractRow(n *html.Node) model.RawRow {
	row := model.RawRow{}

	setStr := func(key, val string) {
		val = strings.TrimSpace(val)
		if val != "" {
			row[key] = model.String(val)
		}
	}

	setStr("rideName", classText(n, "rideName"))
	setStr("date", classText(n, "date"))
	setStr("region", classText(n, "region"))
	setStr("location", classText(n, "location"))
	setStr("rideManager", classText(n, "rideManager"))
	setStr("mapLink", classLink(n, "mapLink"))
	setStr("website", classLink(n, "website"))
	setStr("flyerUrl", classLink(n, "flyer"))
	setStr("directions", classText(n, "directions"))
	setStr("description", classText(n, "description"))
	setStr("notes", classText(n, "notes"))

	if id, ok := htmlutil.Attr(n, "data-ride-id"); ok {
		setStr("rideID", id)
	}
	if tag, ok := htmlutil.Attr(n, "data-tag"); ok {
		setStr("tag", tag)
	}

	if managerContact := htmlutil.FindFirst(n, htmlutil.ByClass("rideManagerContact")); managerContact != nil {
		contact := model.Map(map[string]model.Value{
			"name":  model.String(classText(managerContact, "name")),
			"email": model.String(classText(managerContact, "email")),
			"phone": model.String(classText(managerContact, "phone")),
		})
		row["rideManagerContact"] = contact
	}

	row["distances"] = model.List(extractDistances(n))
	row["controlJudges"] = model.List(extractJudges(n))

	if n2 := htmlutil.FindFirst(n, htmlutil.ByClass("canceled")); n2 != nil {
		row["is_canceled"] = model.Bool(true)
	}
	if n2 := htmlutil.FindFirst(n, htmlutil.ByClass("introRide")); n2 != nil {
		row["hasIntroRide"] = model.Bool(true)
	}

	return row
}

func classText(n *html.Node, class string) string {
	found := htmlutil.FindFirst(n, htmlutil.ByClass(class))
	if found == nil {
		return ""
	}
	return htmlutil.Text(found)
}

func classLink(n *html.Node, class string) string {
	found := htmlutil.FindFirst(n, htmlutil.ByClass(class))
	if found == nil {
		return ""
	}
	if found.Data != "a" {
		if a := htmlutil.FindFirst(found, htmlutil.ByTag("a")); a != nil {
			found = a
		}
	}
	href, _ := htmlutil.Attr(found, "href")
	return href
}

func extractDistances(n *html.Node) []model.Value {
	var out []model.Value
	for _, d := range htmlutil.FindAll(n, htmlutil.ByClass("distance")) {
		out = append(out, model.Map(map[string]model.Value{
			"distance":  model.String(classText(d, "distanceValue")),
			"date":      model.String(classText(d, "distanceDate")),
			"startTime": model.String(classText(d, "startTime")),
		}))
	}
	return out
}

func extractJudges(n *html.Node) []model.Value {
	var out []model.Value
	for _, j := range htmlutil.FindAll(n, htmlutil.ByClass("judge")) {
		out = append(out, model.Map(map[string]model.Value{
			"role": model.String(classText(j, "role")),
			"name": model.String(classText(j, "name")),
		}))
	}
	return out
}
