package server

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/ValentinKolb/dvkv/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

// Server wide metrics, exported by the monitoring server
var (
	sessionsOpened  = metrics.NewCounter(`dvkv_sessions_opened_total`)
	sessionsClosed  = metrics.NewCounter(`dvkv_sessions_closed_total`)
	batchCommits    = metrics.NewCounter(`dvkv_batch_commits_total`)
	batchAborts     = metrics.NewCounter(`dvkv_batch_aborts_total`)
	malformedFrames = metrics.NewCounter(`dvkv_malformed_requests_total`)
)

// commandMetrics holds the request metrics of one command
type commandMetrics struct {
	requests *metrics.Counter
	duration *metrics.Histogram
}

// commandStats is indexed by MessageType, it is filled once and read only afterwards
var commandStats = func() map[common.MessageType]commandMetrics {
	stats := make(map[common.MessageType]commandMetrics)
	for _, t := range common.MessageTypes() {
		stats[t] = commandMetrics{
			requests: metrics.GetOrCreateCounter(fmt.Sprintf(`dvkv_requests_total{command=%q}`, t)),
			duration: metrics.GetOrCreateHistogram(fmt.Sprintf(`dvkv_request_duration_seconds{command=%q}`, t)),
		}
	}
	return stats
}()

// observe records one executed request
func observe(command common.MessageType, start time.Time, resp *common.Message) {
	if stats, ok := commandStats[command]; ok {
		stats.requests.Inc()
		stats.duration.UpdateDuration(start)
	}
	if resp.Status == common.StatusError {
		code := store.CodeOf(resp.Err())
		metrics.GetOrCreateCounter(fmt.Sprintf(`dvkv_request_errors_total{command=%q,code=%q}`, command, code)).Inc()
	}
}
