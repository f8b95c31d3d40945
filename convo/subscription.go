package convo

import (
	"context"

	"github.com/google/uuid"
)

// publisher writes protocol frames to the transport. The client implements
// it; tests substitute a recording fake.
type publisher interface {
	publish(ctx context.Context, in Inbound) error
}

// roomSubscription holds the two live channel handles for a room.
type roomSubscription struct {
	roomID    int64
	messageID string // subscription id for /topic/room/{id}
	typingID  string // subscription id for /topic/typing/{id}
}

// subscriptionRegistry maps the active room to its message and typing
// channels and enforces at most one live room subscription. Callers serialize
// access; the registry itself holds no lock.
type subscriptionRegistry struct {
	log    Logger
	pub    publisher
	active *roomSubscription
}

func newSubscriptionRegistry(pub publisher, log Logger) *subscriptionRegistry {
	return &subscriptionRegistry{log: log, pub: pub}
}

// enter opens the room's message and typing channels and announces the join.
// A previous subscription, including one for the same room, is fully torn
// down first so the old room's leave notice precedes the new room's join.
func (r *subscriptionRegistry) enter(ctx context.Context, roomID int64) error {
	if r.active != nil {
		if err := r.leave(ctx, r.active.roomID); err != nil {
			return err
		}
	}

	sub := &roomSubscription{
		roomID:    roomID,
		messageID: uuid.NewString(),
		typingID:  uuid.NewString(),
	}
	subs := []Inbound{
		{Type: inboundSubscribe, ID: sub.messageID, Destination: roomTopic(roomID)},
		{Type: inboundSubscribe, ID: sub.typingID, Destination: typingTopic(roomID)},
	}
	for _, in := range subs {
		if err := r.pub.publish(ctx, in); err != nil {
			return err
		}
	}
	r.active = sub

	return r.pub.publish(ctx, Inbound{Type: inboundSend, Destination: joinDest(roomID)})
}

// leave closes both channels for the room if a subscription exists and
// announces the leave. Leaving a room with no active subscription is a silent
// no-op: no spurious leave notice is emitted.
func (r *subscriptionRegistry) leave(ctx context.Context, roomID int64) error {
	if r.active == nil || r.active.roomID != roomID {
		r.log.Debug("leave ignored, no subscription", map[string]any{"room": roomID})
		return nil
	}
	sub := r.active
	r.active = nil

	unsubs := []Inbound{
		{Type: inboundUnsubscribe, ID: sub.messageID},
		{Type: inboundUnsubscribe, ID: sub.typingID},
	}
	for _, in := range unsubs {
		if err := r.pub.publish(ctx, in); err != nil {
			return err
		}
	}

	return r.pub.publish(ctx, Inbound{Type: inboundSend, Destination: leaveDest(roomID)})
}

// leaveAll tears down the active subscription with its leave notice; used on
// explicit disconnect before the transport closes.
func (r *subscriptionRegistry) leaveAll(ctx context.Context) error {
	if r.active == nil {
		return nil
	}
	return r.leave(ctx, r.active.roomID)
}

// dropAll forgets the active subscription without emitting frames; used when
// the transport drops and the frames could not be delivered anyway.
func (r *subscriptionRegistry) dropAll() {
	r.active = nil
}

// current returns the active room, if any.
func (r *subscriptionRegistry) current() (int64, bool) {
	if r.active == nil {
		return 0, false
	}
	return r.active.roomID, true
}
