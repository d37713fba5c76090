package tenant

import "github.com/latchql/latch/internal/ir"

// MessageType identifies the kind of message a tick writes to the
// outbox. Values match the wire-level codes a session's transport
// layer expects verbatim - they are not renumbered at any boundary.
type MessageType byte

const (
	MessageCallResult  MessageType = 144
	MessageCallError   MessageType = 145
	MessageFetch       MessageType = 146
	MessageLog         MessageType = 147
	MessageQuery       MessageType = 151
	MessageCreateTimer MessageType = 152
	MessageDeleteTimer MessageType = 153
)

// requestIDMask strips the packed message-type byte back off a request
// id, leaving the 24-bit id the request table actually indexes by.
const requestIDMask = 0x00ffffff

// packRequestID packs a message type into the top byte of a request
// id. The outbox writer uses this so a response arriving on the wire
// can be routed to the right handler without a second lookup: the
// message type travels with the id instead of needing its own field.
func packRequestID(id int32, msgType MessageType) uint32 {
	return uint32(msgType)<<24 | (uint32(id) & requestIDMask)
}

// unpackRequestID splits a packed id back into its message type and
// the underlying 24-bit request id.
func unpackRequestID(packed uint32) (MessageType, int32) {
	return MessageType(packed >> 24), int32(packed & requestIDMask)
}

// OutboxMessage is one entry written to the tick's outbox: an
// envelope plus its JSON-serializable payload.
type OutboxMessage struct {
	Type    MessageType
	ID      uint32
	Payload ir.IRValue
}

// Outbox accumulates every message a tick produces. It is flushed to
// the host's transport once the tick returns - nothing is written
// through to the wire mid-tick.
type Outbox struct {
	messages []OutboxMessage
}

// NewOutbox returns an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Write appends a message, packing requestID and msgType into the
// envelope id a response will echo back.
func (o *Outbox) Write(requestID int32, msgType MessageType, payload ir.IRValue) {
	o.messages = append(o.messages, OutboxMessage{
		Type:    msgType,
		ID:      packRequestID(requestID, msgType),
		Payload: payload,
	})
}

// Messages returns every message written during the tick, in write
// order.
func (o *Outbox) Messages() []OutboxMessage {
	return o.messages
}

// Len reports how many messages are queued.
func (o *Outbox) Len() int {
	return len(o.messages)
}
