package session

import "github.com/latchql/latch/internal/ir"

// DrainPolicy controls what a pending request does when the session
// closes before it settles.
type DrainPolicy int

const (
	// WaitForSend holds the request open until it has at least been
	// written to the wire, then abandons it - the caller accepts that
	// it may never learn the outcome.
	WaitForSend DrainPolicy = iota
	// WaitForAck holds the request open until the server has
	// acknowledged receipt (not full completion).
	WaitForAck
	// Never rejects the request immediately on close with no attempt
	// to let it finish in flight.
	Never
)

// PendingRequest is one in-flight call awaiting a response.
type PendingRequest struct {
	ID       int64
	Sent     bool
	Acked    bool
	Drain    DrainPolicy
	Resolve  func(ir.IRValue)
	Reject   func(error)
}

// RequestTable allocates correlation ids and tracks every request
// awaiting a response. Response order is independent of send order -
// requests are looked up by id, never by position.
type RequestTable struct {
	lastID        int64
	connectedAt   int64
	pending       map[int64]*PendingRequest
}

// NewRequestTable returns an empty table. connectedAtMillis anchors the
// id allocator's floor: a session reconnecting long after its last
// request must not hand out an id a still-settling request from the
// prior connection might also be using.
func NewRequestTable(connectedAtMillis int64) *RequestTable {
	return &RequestTable{connectedAt: connectedAtMillis, pending: make(map[int64]*PendingRequest)}
}

// NextID allocates the next request id: max(lastId+1, now-connectedAt).
// The second term means ids climb with elapsed session time even
// across a run of instant responses, so two sessions opened at
// different times but issuing the same number of requests don't
// collide if their frames are ever replayed against each other.
func (t *RequestTable) NextID(nowMillis int64) int64 {
	floor := nowMillis - t.connectedAt
	next := t.lastID + 1
	if floor > next {
		next = floor
	}
	t.lastID = next
	return next
}

// Register adds a pending request under its allocated id.
func (t *RequestTable) Register(req *PendingRequest) {
	t.pending[req.ID] = req
}

// Get returns the pending request for id, or nil.
func (t *RequestTable) Get(id int64) *PendingRequest {
	return t.pending[id]
}

// Resolve completes and removes a pending request.
func (t *RequestTable) Resolve(id int64, value ir.IRValue) {
	if req, ok := t.pending[id]; ok {
		delete(t.pending, id)
		if req.Resolve != nil {
			req.Resolve(value)
		}
	}
}

// Reject fails and removes a pending request.
func (t *RequestTable) Reject(id int64, err error) {
	if req, ok := t.pending[id]; ok {
		delete(t.pending, id)
		if req.Reject != nil {
			req.Reject(err)
		}
	}
}

// Drain resolves the drain policy for every still-pending request when
// the session is closing: Never-drained requests are rejected
// immediately; WaitForSend/WaitForAck requests that have not yet
// reached their threshold are rejected too, since there is no
// connection left for them to finish over.
func (t *RequestTable) Drain(closeErr error) {
	for id, req := range t.pending {
		switch req.Drain {
		case WaitForSend:
			if req.Sent {
				continue
			}
		case WaitForAck:
			if req.Acked {
				continue
			}
		}
		delete(t.pending, id)
		if req.Reject != nil {
			req.Reject(closeErr)
		}
	}
}

// Len reports how many requests are still pending.
func (t *RequestTable) Len() int {
	return len(t.pending)
}
