package monitor

import (
	"strconv"

	"bikewatch/internal/history"
)

// Identity derives the stable key used to decide whether a rental record has
// been seen before: bike ID + scheduled start + end date.
//
// It is deliberately sensitive to the end date: when a rental transitions
// from "not yet returned" to "returned", the key changes, and the return
// shows up as a second, distinct event instead of mutating the first one.
//
// Absent fields collapse to the "-" sentinel so the function is total.
func Identity(r history.Record) string {
	start := r.ScheduledStart
	if start == "" {
		start = history.NoValue
	}
	end := r.EndDate
	if end == "" {
		end = history.NoValue
	}
	return strconv.FormatInt(r.BikeID, 10) + "_" + start + "_" + end
}
