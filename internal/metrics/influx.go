package metrics

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mailnotify/mailnotify/internal/logging"
)

const influxMeasurement = "mailnotify"

// StartInfluxPusher starts a background loop to push metrics to InfluxDB. It
// returns when ctx is cancelled.
func StartInfluxPusher(ctx context.Context, url, token, org, bucket string, interval time.Duration) {
	if url == "" || bucket == "" {
		return
	}
	logging.Get().Info().Str("url", url).Dur("interval", interval).Msg("starting influxdb pusher")

	client := influxdb2.NewClient(url, token)
	defer client.Close()
	writeAPI := client.WriteAPIBlocking(org, bucket)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pushToInflux(ctx, writeAPI, time.Now())
		}
	}
}

func pushToInflux(ctx context.Context, w api.WriteAPIBlocking, now time.Time) {
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.WritePoint(wctx, snapshotPoints(GetSnapshot(), now)...); err != nil {
		logging.Get().Error().Err(err).Msg("influxdb push failed")
	}
}

// snapshotPoints renders a snapshot as one totals point plus one point per
// channel tagged with the channel name.
func snapshotPoints(s StatsSnapshot, now time.Time) []*write.Point {
	points := []*write.Point{
		write.NewPoint(influxMeasurement, map[string]string{"scope": "total"}, map[string]interface{}{
			"events":               s.Events,
			"dispatch_sent":        s.DispatchSent,
			"dispatch_failed":      s.DispatchFailed,
			"dispatch_skipped":     s.DispatchSkipped,
			"dispatch_unrouted":    s.DispatchUnrouted,
			"store_errors":         s.StoreErrors,
			"ingest_errors":        s.IngestErrors,
			"automation_published": s.AutomationPublished,
			"automation_failed":    s.AutomationFailed,
			"last_event":           s.LastEvent,
		}, now),
	}
	for _, name := range s.ChannelNames() {
		cs := s.Channels[name]
		points = append(points, write.NewPoint(influxMeasurement,
			map[string]string{"scope": "channel", "channel": name},
			map[string]interface{}{
				"sent":     cs.Sent,
				"failed":   cs.Failed,
				"skipped":  cs.Skipped,
				"unrouted": cs.Unrouted,
			}, now))
	}
	return points
}
