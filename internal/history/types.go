package history

// NoValue is the upstream sentinel for "no timestamp" (rental not yet returned).
const NoValue = "-"

// Record is one rental event snapshot for one bike, as returned by the
// history API. Unknown response fields are ignored.
//
// Timestamps are ISO-8601-like strings with fractional seconds and a trailing
// UTC marker (e.g. "2024-01-01T10:00:00.000Z"). An unfinished rental has no
// end_date, or carries the literal "-".
type Record struct {
	BikeID         int64     `json:"bike_id"`
	Name           string    `json:"name"`
	ScheduledStart string    `json:"scheduled_start"`
	EndDate        string    `json:"end_date"`
	Port           string    `json:"port"`
	EndLocation    *Location `json:"end_location"`
}

// Location is a geolocation pair; x is longitude, y is latitude.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Returned reports whether the record describes a completed rental.
func (r Record) Returned() bool {
	return r.EndDate != "" && r.EndDate != NoValue
}
