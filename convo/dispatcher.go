package convo

import "strings"

// Dispatcher routes server frames into the message window, the typing
// tracker, and registered callbacks.
type Dispatcher struct {
	window *messageWindow
	typing *typingTracker
	logger Logger

	onMessage func(Message)
	onError   func(error)
}

// SetOnMessage registers a callback for messages appended to the window.
func (d *Dispatcher) SetOnMessage(fn func(Message)) { d.onMessage = fn }

// SetOnError registers a callback for protocol and decode errors.
func (d *Dispatcher) SetOnError(fn func(error)) { d.onError = fn }

// Dispatch routes one server frame by its destination. Messages for rooms
// other than the active one are dropped, even on a subscribed-looking
// destination: a late push from a just-left room must not leak into the new
// room's window or typing set.
func (d *Dispatcher) Dispatch(out Outbound) {
	if out.Type == outboundError && out.Error != nil {
		d.fireError(FromProtocolError(out.Error))
		return
	}
	if out.Type != outboundMessage {
		return
	}

	var msg Message
	if err := UnmarshalData(out.Data, &msg); err != nil {
		d.fireError(WrapError(ErrorSerialization, "failed to unmarshal pushed message", err))
		return
	}

	switch {
	case strings.HasPrefix(out.Destination, typingTopicPrefix):
		roomID, ok := d.window.room()
		if !ok || msg.ChatRoomID != roomID {
			return
		}
		if msg.Type == MessageStopTyping {
			d.typing.stop(msg.SenderUsername)
		} else {
			d.typing.handleEvent(msg.SenderUsername)
		}
	case strings.HasPrefix(out.Destination, roomTopicPrefix):
		if !d.window.appendPushed(msg) {
			d.logger.Debug("pushed message dropped", map[string]any{
				"room": msg.ChatRoomID,
				"id":   msg.ID,
			})
			return
		}
		d.fireMessage(msg)
	}
}

func (d *Dispatcher) fireMessage(msg Message) {
	if d.onMessage != nil {
		d.onMessage(msg)
	}
}

func (d *Dispatcher) fireError(err error) {
	if d.onError != nil && err != nil {
		d.onError(err)
	}
}
