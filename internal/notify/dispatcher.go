package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"bikewatch/internal/history"
	logx "bikewatch/pkg/logx"
)

// Dispatcher sends one formatted message per new record to every configured
// channel, paced so the receivers' rate limits are respected.
//
// Delivery is attempted once per record per channel. A failed send is logged
// and skipped; it is not retried and not re-queued for a later run.
type Dispatcher struct {
	channels []Channel
	limiter  *rate.Limiter
	log      logx.Logger
}

const defaultPace = time.Second

func NewDispatcher(pace time.Duration, channels []Channel, log logx.Logger) *Dispatcher {
	if pace <= 0 {
		pace = defaultPace
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		channels: channels,
		limiter:  rate.NewLimiter(rate.Every(pace), 1),
		log:      log,
	}
}

// SetPace adjusts the inter-message delay at runtime (daemon config reload).
func (d *Dispatcher) SetPace(pace time.Duration) {
	if pace <= 0 {
		pace = defaultPace
	}
	d.limiter.SetLimit(rate.Every(pace))
}

// Dispatch delivers the batch and returns how many messages were delivered
// to at least one channel.
func (d *Dispatcher) Dispatch(ctx context.Context, records []history.Record) int {
	delivered := 0
	for _, r := range records {
		if err := d.limiter.Wait(ctx); err != nil {
			d.log.Warn("dispatch interrupted", logx.Err(err))
			return delivered
		}

		text := FormatRecord(r)
		ok := false
		for _, ch := range d.channels {
			if err := ch.Send(ctx, text); err != nil {
				d.log.Warn("notification send failed",
					logx.String("channel", ch.Name()),
					logx.Int64("bike_id", r.BikeID),
					logx.Err(err))
				continue
			}
			ok = true
			d.log.Debug("notification sent",
				logx.String("channel", ch.Name()),
				logx.Int64("bike_id", r.BikeID))
		}
		if ok {
			delivered++
		}
	}
	return delivered
}
