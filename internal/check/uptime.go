package check

import (
	"context"
	"math"
)

// UptimePercent is 100*up/total rounded to two decimals. No checks means
// nothing has failed, so it is 100.
func UptimePercent(up, total int) float64 {
	if total <= 0 {
		return 100
	}
	return math.Round(float64(up)/float64(total)*100*100) / 100
}

// Uptime computes the percentage over the executor's trailing window from
// stored results only.
func (e *Executor) Uptime(ctx context.Context, monitorID string) (float64, error) {
	since := e.clock.Now().UTC().Add(-e.window)
	up, total, err := e.store.CountResults(ctx, monitorID, since)
	if err != nil {
		return 0, err
	}
	return UptimePercent(up, total), nil
}
