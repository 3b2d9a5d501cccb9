// Package monitor implements the change-detection engine: it diffs freshly
// fetched rental records against the persisted seen-identity set, decides
// which records are new, and decides whether this run may overwrite state.
package monitor

import (
	"context"
	"fmt"

	"bikewatch/internal/history"
	"bikewatch/internal/state"
	logx "bikewatch/pkg/logx"
)

// Fetcher retrieves the rental history for one bike.
//
// A nil error with an empty slice means the bike verifiably has no history;
// a non-nil error means the bike could not be checked this run.
type Fetcher interface {
	Fetch(ctx context.Context, bikeID int64) ([]history.Record, error)
}

// Notifier delivers the new-record batch and reports how many went out.
type Notifier interface {
	Dispatch(ctx context.Context, records []history.Record) int
}

// Report summarizes one run. It is in-memory only and discarded afterwards.
type Report struct {
	BikesChecked int
	FetchErrors  int
	CurrentIDs   int
	NewRecords   int
	Notified     int
	ColdStart    bool
	Persisted    bool
}

type Engine struct {
	bikes      []int64
	fetcher    Fetcher
	store      state.Store
	dispatcher Notifier
	log        logx.Logger
}

func NewEngine(bikes []int64, f Fetcher, st state.Store, d Notifier, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{bikes: bikes, fetcher: f, store: st, dispatcher: d, log: log}
}

// Run performs one full check cycle.
//
// Per-bike fetch failures are isolated: the bike is skipped for this run and
// counted. A run where every fetch failed never overwrites the persisted set
// (persisting an empty set would make every known record look new next run).
// A failed state save is the only error Run returns.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	prior, err := e.store.Load(ctx)
	if err != nil {
		// Unreadable state is a cold start, not a fatal condition.
		e.log.Warn("state unreadable; treating as cold start", logx.Err(err))
		prior = map[string]struct{}{}
	}
	coldStart := len(prior) == 0

	report := &Report{BikesChecked: len(e.bikes), ColdStart: coldStart}

	current := map[string]struct{}{}
	var newRecords []history.Record

	for _, bikeID := range e.bikes {
		records, err := e.fetcher.Fetch(ctx, bikeID)
		if err != nil {
			report.FetchErrors++
			e.log.Warn("bike unavailable this run", logx.Int64("bike_id", bikeID), logx.Err(err))
			continue
		}

		for _, r := range records {
			id := Identity(r)
			current[id] = struct{}{}
			if _, seen := prior[id]; seen {
				continue
			}
			// First run seeds state silently; notifying here would flood the
			// channel with the entire history.
			if !coldStart {
				newRecords = append(newRecords, r)
			}
		}
	}

	report.CurrentIDs = len(current)
	report.NewRecords = len(newRecords)

	if len(current) == 0 && report.FetchErrors > 0 {
		e.log.Warn("all fetches failed or returned nothing; keeping previous state",
			logx.Int("fetch_errors", report.FetchErrors))
		return report, nil
	}

	if len(newRecords) > 0 {
		e.log.Info("new rental events detected", logx.Int("count", len(newRecords)))
		report.Notified = e.dispatcher.Dispatch(ctx, newRecords)
	} else {
		e.log.Info("no new rental events")
	}

	updated := make(map[string]struct{}, len(prior)+len(current))
	for id := range prior {
		updated[id] = struct{}{}
	}
	for id := range current {
		updated[id] = struct{}{}
	}

	if err := e.store.Save(ctx, updated); err != nil {
		// Losing this write means already-notified events may notify again
		// next run, so it gets its own loud failure mode.
		e.log.Error("state save failed; next run may re-notify seen events", logx.Err(err))
		return report, fmt.Errorf("persist seen identities: %w", err)
	}
	report.Persisted = true
	return report, nil
}
