package kafka

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type EventType string

const (
	EventTavernCreated       EventType = "tavern.created"
	EventMemberJoined        EventType = "member.joined"
	EventGameDayConcluded    EventType = "gameday.concluded"
	EventTavernLeveledUp     EventType = "tavern.leveled_up"
	EventNotificationCreated EventType = "notification.created"
)

// Event is one entry of the tavern activity stream.
type Event struct {
	Type       EventType      `json:"type"`
	TavernID   string         `json:"tavern_id"`
	ActorID    string         `json:"actor_id"`
	Attributes map[string]any `json:"attributes,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher emits activity events after the state change has committed.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// ActivityPublisher writes events to a single topic keyed by tavern id, so
// a tavern's events stay ordered within one partition.
type ActivityPublisher struct {
	producer   *Producer
	topic      string
	maxRetries int
}

func NewActivityPublisher(producer *Producer, topic string, maxRetries int) *ActivityPublisher {
	return &ActivityPublisher{producer: producer, topic: topic, maxRetries: maxRetries}
}

func (p *ActivityPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	var key []byte
	if event.TavernID != "" {
		key = []byte(event.TavernID)
	}
	if _, _, err := p.producer.ProduceWithRetry(ctx, p.topic, key, payload, p.maxRetries); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

func (p *ActivityPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher drops every event. It is used when kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// EncodeEvent serializes event as a protobuf Struct.
func EncodeEvent(event Event) ([]byte, error) {
	attrs := make(map[string]any, len(event.Attributes))
	for k, v := range event.Attributes {
		attrs[k] = normalize(v)
	}
	s, err := structpb.NewStruct(map[string]any{
		"type":        string(event.Type),
		"tavern_id":   event.TavernID,
		"actor_id":    event.ActorID,
		"occurred_at": event.OccurredAt.UTC().Format(time.RFC3339Nano),
		"attributes":  attrs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", event.Type, err)
	}
	return proto.Marshal(s)
}

func DecodeEvent(data []byte) (Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	m := s.AsMap()

	event := Event{
		Type:     EventType(stringField(m, "type")),
		TavernID: stringField(m, "tavern_id"),
		ActorID:  stringField(m, "actor_id"),
	}
	if attrs, ok := m["attributes"].(map[string]any); ok && len(attrs) > 0 {
		event.Attributes = attrs
	}
	if at := stringField(m, "occurred_at"); at != "" {
		parsed, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return Event{}, fmt.Errorf("failed to decode event time: %w", err)
		}
		event.OccurredAt = parsed
	}
	return event, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// normalize converts values structpb rejects into ones it accepts.
func normalize(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return v
	}
}
