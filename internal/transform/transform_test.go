package transform_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailblazeapp/ride-ingest/internal/model"
	"github.com/trailblazeapp/ride-ingest/internal/transform"
)

func baseRow() model.RawRow {
	return model.RawRow{
		"rideName": model.String("Fort Valley Fling"),
		"date":     model.String("2026-04-18"),
		"region":   model.String("Virginia"),
		"location": model.String("Fort Valley, VA"),
	}
}

func TestTransform_BasicRow(t *testing.T) {
	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, baseRow())
	require.NoError(t, err)

	assert.Equal(t, "Fort Valley Fling", ev.Name)
	assert.Equal(t, 2026, ev.DateStart.Year())
	assert.Equal(t, "Fort Valley", ev.City)
	assert.Equal(t, "VA", ev.State)
	assert.Equal(t, "USA", ev.Country)
	assert.Equal(t, 1, ev.RideDays)
	assert.False(t, ev.IsMultiDayEvent)
}

func TestTransform_CanadianProvinceInfersCountry(t *testing.T) {
	row := baseRow()
	row["location"] = model.String("Calgary, AB")

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)

	assert.Equal(t, "AB", ev.State)
	assert.Equal(t, "Canada", ev.Country)
}

func TestTransform_USStateDefaultsToUSA(t *testing.T) {
	row := baseRow()
	row["location"] = model.String("Bend, OR")

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)

	assert.Equal(t, "USA", ev.Country)
}

func TestTransform_USSlashDateFormat(t *testing.T) {
	row := baseRow()
	row["date"] = model.String("04/18/2026")

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)
	assert.Equal(t, 4, int(ev.DateStart.Month()))
	assert.Equal(t, 18, ev.DateStart.Day())
}

func TestTransform_BadDateFormatErrors(t *testing.T) {
	row := baseRow()
	row["date"] = model.String("not-a-date")

	tr := transform.New()
	_, err := tr.Transform(model.SourceAERC, row)
	require.Error(t, err)

	var terr *transform.Error
	require.ErrorAs(t, err, &terr)
}

func TestTransform_MultiDayNameKeyword(t *testing.T) {
	row := baseRow()
	row["rideName"] = model.String("Fort Valley 3-Day Classic")

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)
	assert.True(t, ev.IsMultiDayEvent)
}

func TestTransform_PioneerImpliesMultiDayAndMinimumThreeDays(t *testing.T) {
	row := baseRow()
	row["rideName"] = model.String("Big Horn Pioneer Ride")

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)

	assert.True(t, ev.IsPioneerRide)
	assert.True(t, ev.IsMultiDayEvent)
	assert.GreaterOrEqual(t, ev.RideDays, 3)
}

func TestTransform_DuplicateDistancesImplyMultiDay(t *testing.T) {
	row := baseRow()
	row["distances"] = model.List([]model.Value{
		model.Map(map[string]model.Value{"distance": model.String("50"), "date": model.String("2026-04-18")}),
		model.Map(map[string]model.Value{"distance": model.String("50"), "date": model.String("2026-04-19")}),
	})

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)
	assert.True(t, ev.IsMultiDayEvent)
}

func TestTransform_DistanceCanonicalization(t *testing.T) {
	row := baseRow()
	row["distances"] = model.List([]model.Value{
		model.Map(map[string]model.Value{"distance": model.String("50 Miles"), "date": model.String("2026-04-18")}),
		model.Map(map[string]model.Value{"distance": model.String("25km"), "date": model.String("2026-04-18")}),
	})

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)
	require.Len(t, ev.Distances, 2)
	assert.Equal(t, "50 miles", ev.Distances[0].DistanceText)
	assert.Equal(t, "25 km", ev.Distances[1].DistanceText)
}

func TestTransform_IntroDistanceSetsHasIntroRide(t *testing.T) {
	row := baseRow()
	row["distances"] = model.List([]model.Value{
		model.Map(map[string]model.Value{"distance": model.String("intro"), "date": model.String("2026-04-18")}),
	})

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)
	assert.True(t, ev.HasIntroRide)
}

func TestTransform_ShortNumericDistanceSetsHasIntroRide(t *testing.T) {
	row := baseRow()
	row["distances"] = model.List([]model.Value{
		model.Map(map[string]model.Value{"distance": model.String("10 miles"), "date": model.String("2026-04-18")}),
	})

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)
	assert.True(t, ev.HasIntroRide, "10 miles is at or under the 15-mile intro threshold")
}

func TestTransform_LongDistanceDoesNotSetHasIntroRide(t *testing.T) {
	row := baseRow()
	row["distances"] = model.List([]model.Value{
		model.Map(map[string]model.Value{"distance": model.String("50 miles"), "date": model.String("2026-04-18")}),
	})

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)
	assert.False(t, ev.HasIntroRide)
}

func TestTransform_ContactPrefersNestedNameOverFlat(t *testing.T) {
	row := baseRow()
	row["rideManager"] = model.String("Flat Name")
	row["rideManagerContact"] = model.Map(map[string]model.Value{
		"name":  model.String("Nested Name"),
		"email": model.String("nested@example.com"),
	})

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)

	assert.Equal(t, "Nested Name", ev.RideManagerContact.Name)
	require.NotNil(t, ev.ManagerEmail)
	assert.Equal(t, "nested@example.com", *ev.ManagerEmail)
}

func TestTransform_DescriptionTruncatedAt2000(t *testing.T) {
	long := make([]byte, 2500)
	for i := range long {
		long[i] = 'a'
	}
	row := baseRow()
	row["description"] = model.String(string(long))

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)

	assert.Equal(t, 2001, len([]rune(ev.Description)))
	assert.True(t, len(ev.Description) > 2000)
}

func TestTransform_JudgesParsed(t *testing.T) {
	row := baseRow()
	row["controlJudges"] = model.List([]model.Value{
		model.Map(map[string]model.Value{"role": model.String("Head Judge"), "name": model.String("Dr. Smith")}),
	})

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)
	require.Len(t, ev.Judges, 1)
	assert.Equal(t, "Dr. Smith", ev.Judges[0].Name)
	assert.Equal(t, "Head Judge", ev.Judges[0].Role)
}

func TestTransform_JudgesPopulateControlJudgesBagEntry(t *testing.T) {
	row := baseRow()
	row["controlJudges"] = model.List([]model.Value{
		model.Map(map[string]model.Value{"role": model.String("Head Judge"), "name": model.String("Dr. Smith")}),
	})

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)

	bag, ok := ev.EventDetails["control_judges"].([]map[string]string)
	require.True(t, ok, "control_judges bag entry must be present alongside the flat Judges field")
	require.Len(t, bag, 1)
	assert.Equal(t, "Dr. Smith", bag[0]["name"])
	assert.Equal(t, "Head Judge", bag[0]["role"])
}

func TestTransform_NoJudgesOmitsControlJudgesBagEntry(t *testing.T) {
	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, baseRow())
	require.NoError(t, err)

	_, ok := ev.EventDetails["control_judges"]
	assert.False(t, ok)
}

func TestTransform_SynthesizesDeterministicExternalIDWhenNoRideID(t *testing.T) {
	tr := transform.New()

	ev1, err := tr.Transform(model.SourceAERC, baseRow())
	require.NoError(t, err)
	require.NotNil(t, ev1.ExternalID)
	assert.Nil(t, ev1.RideID)

	ev2, err := tr.Transform(model.SourceAERC, baseRow())
	require.NoError(t, err)
	require.NotNil(t, ev2.ExternalID)

	assert.Equal(t, *ev1.ExternalID, *ev2.ExternalID,
		"same source/name/date must synthesize the same ExternalID across runs")
}

func TestTransform_NativeRideIDSkipsSyntheticExternalID(t *testing.T) {
	row := baseRow()
	row["rideID"] = model.String("12345")

	tr := transform.New()
	ev, err := tr.Transform(model.SourceAERC, row)
	require.NoError(t, err)

	require.NotNil(t, ev.RideID)
	assert.Equal(t, "12345", *ev.RideID)
	assert.Nil(t, ev.ExternalID, "a native ride ID means no synthetic ExternalID is needed")
}
