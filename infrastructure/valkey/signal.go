package valkey

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"
)

// Signal is a pub/sub wake-up: every poller listening on it runs a check when
// any process calls Notify.
type Signal struct {
	client  *Client
	channel string
}

func NewSignal(client *Client) *Signal {
	return &Signal{client: client, channel: client.Key("scheduler", "signal")}
}

func (s *Signal) Notify(ctx context.Context) error {
	inner := s.client.Inner()
	return inner.Do(ctx, inner.B().Publish().Channel(s.channel).Message("check").Build()).Error()
}

// Listen subscribes in the background until ctx is done.
func (s *Signal) Listen(ctx context.Context, onWake func()) {
	logrus.Infof("[SCHEDULER] Watching wake-up channel %s", s.channel)
	go func() {
		inner := s.client.Inner()
		err := inner.Receive(ctx, inner.B().Subscribe().Channel(s.channel).Build(), func(msg valkeylib.PubSubMessage) {
			logrus.Debug("[SCHEDULER] Wake-up signal received from Valkey")
			onWake()
		})
		if err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("[SCHEDULER] Wake-up listener failed")
		}
	}()
}

type relayEnvelope struct {
	SenderID string    `json:"sender_id"`
	Event    job.Event `json:"event"`
}

// EventRelay carries execution events between processes so dashboards attached
// to any instance see every run.
type EventRelay struct {
	client   *Client
	channel  string
	senderID string
}

func NewEventRelay(client *Client, senderID string) *EventRelay {
	return &EventRelay{client: client, channel: client.Key("events"), senderID: senderID}
}

// Publish implements job.EventSink. Delivery is best effort.
func (r *EventRelay) Publish(evt job.Event) {
	data, err := json.Marshal(relayEnvelope{SenderID: r.senderID, Event: evt})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	inner := r.client.Inner()
	if err := inner.Do(ctx, inner.B().Publish().Channel(r.channel).Message(string(data)).Build()).Error(); err != nil {
		logrus.WithError(err).Warnf("[WS] Failed to relay %s for job %s", evt.Type, evt.JobID)
	}
}

// Listen delivers events published by other processes; our own are skipped.
func (r *EventRelay) Listen(ctx context.Context, fn func(job.Event)) {
	logrus.Info("[WS] Starting Valkey subscriber for execution events")
	go func() {
		inner := r.client.Inner()
		err := inner.Receive(ctx, inner.B().Subscribe().Channel(r.channel).Build(), func(msg valkeylib.PubSubMessage) {
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Message), &env); err != nil {
				return
			}
			if env.SenderID == r.senderID {
				return
			}
			fn(env.Event)
		})
		if err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("[WS] Valkey event subscriber failed")
		}
	}()
}
