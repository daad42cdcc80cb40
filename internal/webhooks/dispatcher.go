// Package webhooks publishes channel lifecycle events onto a Kafka topic
// so downstream consumers (webhook relays, audit pipelines) can react
// without touching the server's hot path. Delivery is best-effort: a write
// failure is logged and the event is gone.
package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event names, matching the Pusher webhook vocabulary.
const (
	EventChannelOccupied = "channel_occupied"
	EventChannelVacated  = "channel_vacated"
	EventMemberAdded     = "member_added"
	EventMemberRemoved   = "member_removed"
	EventClientEvent     = "client_event"
)

type event struct {
	Name    string `json:"name"`
	AppID   string `json:"app_id"`
	Channel string `json:"channel"`
	UserID  string `json:"user_id,omitempty"`
	Event   string `json:"event,omitempty"`
	TimeMS  int64  `json:"time_ms"`
}

const writeTimeout = 5 * time.Second

// Dispatcher implements channels.LifecycleHooks on top of a Kafka writer.
type Dispatcher struct {
	writer *kafka.Writer
}

// NewDispatcher builds a dispatcher writing to the given brokers and topic.
// Writes are asynchronous so a slow broker cannot stall channel operations.
func NewDispatcher(brokers []string, topic string) *Dispatcher {
	return &Dispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				slog.Error("Webhook write failed", "detail", fmt.Sprintf(msg, args...))
			}),
		},
	}
}

func (d *Dispatcher) emit(ev event) {
	ev.TimeMS = time.Now().UnixMilli()
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to encode webhook event", "name", ev.Name, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err = d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.AppID),
		Value: payload,
	})
	if err != nil {
		slog.Error("Failed to publish webhook event", "name", ev.Name, "appId", ev.AppID, "error", err)
	}
}

func (d *Dispatcher) ChannelOccupied(appID, channel string) {
	d.emit(event{Name: EventChannelOccupied, AppID: appID, Channel: channel})
}

func (d *Dispatcher) ChannelVacated(appID, channel string) {
	d.emit(event{Name: EventChannelVacated, AppID: appID, Channel: channel})
}

func (d *Dispatcher) MemberAdded(appID, channel, userID string) {
	d.emit(event{Name: EventMemberAdded, AppID: appID, Channel: channel, UserID: userID})
}

func (d *Dispatcher) MemberRemoved(appID, channel, userID string) {
	d.emit(event{Name: EventMemberRemoved, AppID: appID, Channel: channel, UserID: userID})
}

func (d *Dispatcher) ClientEvent(appID, channel, eventName string) {
	d.emit(event{Name: EventClientEvent, AppID: appID, Channel: channel, Event: eventName})
}

func (d *Dispatcher) Close() error {
	return d.writer.Close()
}
