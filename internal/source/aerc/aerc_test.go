package aerc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailblazeapp/ride-ingest/internal/htmlutil"
	"github.com/trailblazeapp/ride-ingest/internal/model"
	"github.com/trailblazeapp/ride-ingest/internal/source/aerc"
)

const sampleRow = `
<div class="calendarRow" data-ride-id="12345">
	<div class="rideName">Fort Valley Fling</div>
	<div class="date">2026-04-18</div>
	<div class="region">Virginia</div>
	<div class="location">Fort Valley, VA</div>
	<div class="rideManager">Jane Doe</div>
	<div class="rideManagerContact">
		<span class="name">Jane Doe</span>
		<span class="email">jane@example.com</span>
		<span class="phone">555-1234</span>
	</div>
	<div class="distance">
		<span class="distanceValue">50</span>
		<span class="distanceDate">2026-04-18</span>
		<span class="startTime">06:00</span>
	</div>
	<div class="judge">
		<span class="role">Head Judge</span>
		<span class="name">Dr. Smith</span>
	</div>
	<a class="mapLink" href="https://maps.example.com/x">map</a>
</div>`

func TestDriver_IdentityAndName(t *testing.T) {
	d := aerc.New()
	assert.Equal(t, model.SourceAERC, d.Source())
	assert.Equal(t, "aerc", d.Name())
}

func TestDriver_IsRow(t *testing.T) {
	doc, err := htmlutil.Parse(sampleRow)
	require.NoError(t, err)

	d := aerc.New()
	rows := htmlutil.FindAll(doc, d.IsRow)
	require.Len(t, rows, 1)
}

func TestDriver_ExtractRow(t *testing.T) {
	doc, err := htmlutil.Parse(sampleRow)
	require.NoError(t, err)

	d := aerc.New()
	rows := htmlutil.FindAll(doc, d.IsRow)
	require.Len(t, rows, 1)

	row := d.ExtractRow(rows[0])

	assert.Equal(t, "Fort Valley Fling", row.GetString("rideName"))
	assert.Equal(t, "2026-04-18", row.GetString("date"))
	assert.Equal(t, "Virginia", row.GetString("region"))
	assert.Equal(t, "Fort Valley, VA", row.GetString("location"))
	assert.Equal(t, "12345", row.GetString("rideID"))
	assert.Equal(t, "https://maps.example.com/x", row.GetString("mapLink"))

	distances := row.GetList("distances")
	require.Len(t, distances, 1)
	assert.Equal(t, "50", distances[0].Map["distance"].AsString())

	judges := row.GetList("controlJudges")
	require.Len(t, judges, 1)
	assert.Equal(t, "Dr. Smith", judges[0].Map["name"].AsString())

	contact, ok := row.Get("rideManagerContact")
	require.True(t, ok)
	assert.Equal(t, "jane@example.com", contact.Map["email"].AsString())
}

func TestDriver_ExtractRow_CanceledAndIntro(t *testing.T) {
	raw := `<div class="calendarRow">
		<div class="rideName">Canceled Classic</div>
		<div class="date">2026-05-01</div>
		<div class="region">Region</div>
		<div class="location">Somewhere, CA</div>
		<div class="canceled">CANCELED</div>
		<div class="introRide">intro ride available</div>
	</div>`

	doc, err := htmlutil.Parse(raw)
	require.NoError(t, err)

	d := aerc.New()
	rows := htmlutil.FindAll(doc, d.IsRow)
	require.Len(t, rows, 1)

	row := d.ExtractRow(rows[0])
	canceled, _ := row.Get("is_canceled")
	intro, _ := row.Get("hasIntroRide")
	assert.True(t, canceled.Bool)
	assert.True(t, intro.Bool)
}
