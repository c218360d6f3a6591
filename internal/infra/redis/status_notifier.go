package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/logger"
)

// StatusChannel is the pub/sub channel carrying scan status events between
// workers and API processes.
const StatusChannel = "auditflow:scan:status"

// statusMessage is the wire envelope of a status event.
type statusMessage struct {
	UserID string              `json:"user_id"`
	Event  scanjob.StatusEvent `json:"event"`
}

// DeliverFunc hands a received status event to local observers.
type DeliverFunc func(userID string, ev scanjob.StatusEvent)

// StatusNotifier fans scan status events out across processes. Workers
// publish; API processes listen and deliver to their connected observers.
type StatusNotifier struct {
	client *Client
	logger *logger.Logger
}

// NewStatusNotifier creates a StatusNotifier.
func NewStatusNotifier(client *Client, log *logger.Logger) *StatusNotifier {
	return &StatusNotifier{
		client: client,
		logger: log.With("component", "status_notifier"),
	}
}

// PublishStatus publishes ev for userID on StatusChannel.
func (n *StatusNotifier) PublishStatus(ctx context.Context, userID string, ev scanjob.StatusEvent) error {
	data, err := encodeStatus(userID, ev)
	if err != nil {
		return err
	}
	if err := n.client.Client().Publish(ctx, StatusChannel, data).Err(); err != nil {
		return fmt.Errorf("publish scan status: %w", err)
	}
	DefaultMetrics.RecordMessage(StatusChannel, "out")

	n.logger.Debug("published scan status",
		"scan_id", ev.ScanID,
		"user_id", userID,
		"status", ev.Status,
	)
	return nil
}

// StartListener subscribes to StatusChannel and calls deliver for every
// event until ctx is done. It returns once the subscription is confirmed.
func (n *StatusNotifier) StartListener(ctx context.Context, deliver DeliverFunc) error {
	if deliver == nil {
		return errors.New("deliver func is required")
	}

	pubsub := n.client.Client().Subscribe(ctx, StatusChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", StatusChannel, err)
	}

	n.logger.Info("listening for scan status events", "channel", StatusChannel)
	go n.listenLoop(ctx, pubsub, deliver)
	return nil
}

func (n *StatusNotifier) listenLoop(ctx context.Context, pubsub *redis.PubSub, deliver DeliverFunc) {
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("status listener stopping")
			return

		case msg, ok := <-ch:
			if !ok {
				n.logger.Warn("pub/sub channel closed")
				return
			}
			DefaultMetrics.RecordMessage(StatusChannel, "in")

			userID, ev, err := decodeStatus([]byte(msg.Payload))
			if err != nil {
				n.logger.Error("failed to decode scan status", "error", err)
				continue
			}
			deliver(userID, ev)
		}
	}
}

func encodeStatus(userID string, ev scanjob.StatusEvent) ([]byte, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	data, err := json.Marshal(statusMessage{UserID: userID, Event: ev})
	if err != nil {
		return nil, fmt.Errorf("marshal scan status: %w", err)
	}
	return data, nil
}

func decodeStatus(payload []byte) (string, scanjob.StatusEvent, error) {
	var msg statusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", scanjob.StatusEvent{}, fmt.Errorf("unmarshal scan status: %w", err)
	}
	if msg.UserID == "" || msg.Event.ScanID == "" {
		return "", scanjob.StatusEvent{}, errors.New("scan status missing user or scan id")
	}
	return msg.UserID, msg.Event, nil
}
