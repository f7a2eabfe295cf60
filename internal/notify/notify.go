// README: Fire-and-forget notification dispatch to operators, fleets, and shippers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"trackas/internal/types"
)

type EventType string

const (
	EventOfferCreated     EventType = "assignment_offer"
	EventOfferAccepted    EventType = "assignment_accepted"
	EventOfferRejected    EventType = "assignment_rejected"
	EventPriceEscalated   EventType = "price_escalated"
	EventShipmentFailed   EventType = "shipment_failed"
	EventDeliveryVerified EventType = "delivery_verified"
	EventEscrowRefunded   EventType = "escrow_refunded"
)

// Audience selects the channel family a notification is published on.
type Audience string

const (
	AudienceOperator Audience = "operator"
	AudienceFleet    Audience = "fleet"
	AudienceShipper  Audience = "shipper"
)

type Event struct {
	Type       EventType      `json:"type"`
	Audience   Audience       `json:"audience"`
	TargetID   types.ID       `json:"target_id"`
	ShipmentID types.ID       `json:"shipment_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Sender dispatches an event. Delivery is best effort; callers never depend
// on confirmation.
type Sender interface {
	Send(ctx context.Context, e Event) error
}

// RedisSender publishes events on per-target pub/sub channels consumed by
// the (out-of-scope) delivery gateways.
type RedisSender struct {
	redis *redis.Client
}

func NewRedisSender(redis *redis.Client) *RedisSender {
	return &RedisSender{redis: redis}
}

func (s *RedisSender) Send(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	channel := fmt.Sprintf("notify:%s:%s", e.Audience, e.TargetID)
	return s.redis.Publish(ctx, channel, body).Err()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }

// Recorder captures events for assertions in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Send(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
