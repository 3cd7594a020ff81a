package model

import "time"

// Source identifies the calendar source an event was ingested from.
type Source string

const (
	SourceAERC     Source = "AERC"
	SourcePNER     Source = "PNER"
	SourceFacebook Source = "FACEBOOK"
	SourceManual   Source = "MANUAL"
)

// Distance is one ride distance offered by an event, with its own date and
// start time since multi-day rides offer different distances per day.
type Distance struct {
	DistanceText string
	Date         time.Time
	StartTime    string
}

// Judge is a control or head judge credited on an event.
type Judge struct {
	Name string
	Role string
}

// Contact mirrors the ride manager's contact details; Email/Phone are
// pointers so the Upserter can distinguish "unknown" from "explicitly empty".
type Contact struct {
	Name  string
	Email *string
	Phone *string
}

// CanonicalEvent is the normalised, source-agnostic record produced by the
// Transformer and consumed by the Upserter. Its field invariants are
// enforced by the Validator and Transformer.
type CanonicalEvent struct {
	// Identity. RideID is the source's own identifier when it has one; when
	// it doesn't, the Transformer mints a deterministic ExternalID instead so
	// the same row still gets the same identifier across runs.
	Source     Source
	ExternalID *string
	RideID     *string

	// Core
	Name      string
	DateStart time.Time
	DateEnd   time.Time
	Location  string
	Region    string

	// Structured location
	City      string
	State     string
	Country   string
	Latitude  *float64
	Longitude *float64

	// Distances
	Distances []Distance

	// Flags
	IsCanceled         bool
	IsVerified         bool
	HasIntroRide       bool
	IsMultiDayEvent    bool
	IsPioneerRide      bool
	RideDays           int
	GeocodingAttempted bool

	// Contacts
	RideManager        string
	ManagerEmail       *string
	ManagerPhone       *string
	RideManagerContact Contact

	// References
	Website     string
	FlyerURL    string
	MapLink     string
	Directions  string
	Judges      []Judge
	Description string
	Notes       string

	// Bag — anything not promoted to a column.
	EventDetails map[string]interface{}

	// Audit
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CacheEntry describes the fields of a Cache record. The cache package
// persists its own {timestamp, value} JSON form and does not use this type.
type CacheEntry struct {
	KeyHash  string
	StoredAt time.Time
	Payload  []byte
}
