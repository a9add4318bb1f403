package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/services"
)

// NotificationMessage is the wire form of a notification travelling through Pub/Sub.
type NotificationMessage struct {
	ID            string            `json:"id"`
	RecipientID   string            `json:"recipientId,omitempty"`
	RecipientRole string            `json:"recipientRole"`
	Kind          string            `json:"kind,omitempty"`
	Title         string            `json:"title"`
	Body          string            `json:"body,omitempty"`
	Data          map[string]string `json:"data,omitempty"`
	Priority      string            `json:"priority,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// PushEnvelope is the body Pub/Sub posts to a push subscription endpoint.
type PushEnvelope struct {
	Message      PushMessage `json:"message"`
	Subscription string      `json:"subscription"`
}

// PushMessage is the message part of a push delivery. Data arrives base64 encoded.
type PushMessage struct {
	Data        []byte            `json:"data"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	MessageID   string            `json:"messageId"`
	PublishTime time.Time         `json:"publishTime"`
}

// PubSubNotificationPublisher is a NotificationSink that hands notifications to a Pub/Sub topic
// consumed by the push delivery endpoint.
type PubSubNotificationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubNotificationPublisher constructs a Pub/Sub backed notification sink.
func NewPubSubNotificationPublisher(topic *pubsub.Topic) (*PubSubNotificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification publisher: topic is required")
	}
	return &PubSubNotificationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// Send publishes the notification and waits for the server acknowledgement.
func (p *PubSubNotificationPublisher) Send(ctx context.Context, notification services.Notification) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub notification publisher: not initialised")
	}
	data, err := p.marshal(toNotificationMessage(notification))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "notificationId", notification.ID)
	setAttr(attrs, "recipientRole", notification.RecipientRole)
	setAttr(attrs, "kind", string(notification.Kind))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// DecodeNotificationPush extracts the notification carried by a Pub/Sub push request body.
func DecodeNotificationPush(body []byte) (services.Notification, error) {
	var envelope PushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return services.Notification{}, fmt.Errorf("decode push envelope: %w", err)
	}
	if len(envelope.Message.Data) == 0 {
		return services.Notification{}, errors.New("decode push envelope: message data is empty")
	}
	var msg NotificationMessage
	if err := json.Unmarshal(envelope.Message.Data, &msg); err != nil {
		return services.Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if strings.TrimSpace(msg.ID) == "" {
		msg.ID = envelope.Message.Attributes["notificationId"]
	}
	return services.Notification{
		ID:            msg.ID,
		RecipientID:   msg.RecipientID,
		RecipientRole: msg.RecipientRole,
		Kind:          domain.NotificationKind(msg.Kind),
		Title:         msg.Title,
		Body:          msg.Body,
		Data:          msg.Data,
		Priority:      domain.NotificationPriority(msg.Priority),
		CreatedAt:     msg.CreatedAt,
	}, nil
}

func toNotificationMessage(n services.Notification) NotificationMessage {
	return NotificationMessage{
		ID:            n.ID,
		RecipientID:   n.RecipientID,
		RecipientRole: n.RecipientRole,
		Kind:          string(n.Kind),
		Title:         n.Title,
		Body:          n.Body,
		Data:          n.Data,
		Priority:      string(n.Priority),
		CreatedAt:     n.CreatedAt.UTC(),
	}
}
