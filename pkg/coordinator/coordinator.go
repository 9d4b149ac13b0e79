// Package coordinator implements the two timer coordinators: the Primary,
// which owns the meeting record and is the only writer of speaking
// samples, and the Secondary, a detached remote control that mirrors the
// primary's state for display and forwards user actions.
//
// The two run in separate processes joined only by a best-effort message
// channel. Neither assumes delivery; each keeps its own state
// self-consistent when messages are lost.
package coordinator

import (
	"context"
	"time"

	"github.com/airtimehq/airtime/pkg/channel"
	aterrors "github.com/airtimehq/airtime/pkg/errors"
	"github.com/airtimehq/airtime/pkg/logging"
	"github.com/airtimehq/airtime/pkg/meeting"
	"github.com/airtimehq/airtime/pkg/observability"
)

// EndDelay is how long a secondary waits between sending meeting.ended
// and shutting down, giving the fire-and-forget send a chance to flush.
const EndDelay = 300 * time.Millisecond

// categoryNames is the label set for the active-speaker gauge.
func categoryNames() []string {
	cats := meeting.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return names
}

// send publishes an envelope, tolerating failure: the peer simply misses
// one update. Returns true when the envelope certainly went out.
func send(ctx context.Context, t channel.Transport, role channel.Role, env channel.Envelope,
	log logging.Logger, metrics *observability.TimerMetrics) bool {

	if err := t.Send(ctx, env); err != nil {
		log.Warn("message not delivered, peer will miss this update",
			logging.F("kind", string(env.Type)),
			logging.Err(err))
		if metrics != nil {
			metrics.TransportFailures.WithLabelValues(string(env.Type), string(role)).Inc()
		}
		return false
	}
	if metrics != nil {
		metrics.MessagesSentTotal.WithLabelValues(string(env.Type), string(role)).Inc()
	}
	return true
}

// recordDrop counts an inbound envelope rejected at the decode boundary.
func recordDrop(err error, role channel.Role, metrics *observability.TimerMetrics) string {
	reason := observability.DropReasonMalformed
	if aterrors.IsOriginMismatch(err) {
		reason = observability.DropReasonOrigin
	}
	if metrics != nil {
		metrics.MessagesDroppedTotal.WithLabelValues(reason, string(role)).Inc()
	}
	return reason
}
