package tenant

// SubtaskID identifies one outstanding unit of suspended work within a
// task. Ids are 31-bit: the top bit is reserved so a subtask id can
// never collide with the sign bit games the outbox plays on request
// ids. Ids are never reused for the lifetime of the owning tenant, so
// a stale resumption naming an id that has already completed is
// unambiguously an error rather than a race against reuse.
type SubtaskID int32

const subtaskIDMask = 0x7fffffff

// SubtaskKind distinguishes the three shapes of suspended work a task
// can register.
type SubtaskKind int

const (
	// SubtaskPromise suspends until a promise settles - exactly one
	// resumption, either a resolution or a rejection, then the
	// registration is deleted.
	SubtaskPromise SubtaskKind = iota
	// SubtaskCallback suspends on a callback-style API that may invoke
	// its handler more than once before the task tells it to stop.
	SubtaskCallback
	// SubtaskTimer suspends on a scheduled firing. A single-shot timer
	// is deleted after it fires once; an interval timer retains its
	// registration and fires again.
	SubtaskTimer
)

// Subtask is one outstanding registration. Resolve and Reject are set
// for SubtaskPromise; Callback is set for SubtaskCallback; Interval
// marks a SubtaskTimer that retains its registration after firing.
// RequestID names the context that created the subtask - the only
// promise subtasks a cancellation request may discard are the ones
// whose RequestID matches.
type Subtask struct {
	ID        SubtaskID
	Kind      SubtaskKind
	RequestID string
	Resolve   func(value any)
	Reject    func(err error)
	Callback  func(value any)
	Interval  bool
}

// SubtaskRegistry owns every live subtask for one tenant and the
// monotonic counter that allocates their ids.
type SubtaskRegistry struct {
	next  SubtaskID
	table map[SubtaskID]*Subtask
}

// NewSubtaskRegistry returns an empty registry.
func NewSubtaskRegistry() *SubtaskRegistry {
	return &SubtaskRegistry{table: make(map[SubtaskID]*Subtask)}
}

func (r *SubtaskRegistry) allocate() SubtaskID {
	r.next = (r.next + 1) & subtaskIDMask
	if r.next == 0 {
		r.next = 1
	}
	return r.next
}

// NewPromiseSubtask registers a subtask that resumes exactly once, via
// either resolve or reject, under the context identified by requestID -
// the id a later CancelRequest names to reject it early.
func (r *SubtaskRegistry) NewPromiseSubtask(requestID string, resolve func(any), reject func(error)) SubtaskID {
	id := r.allocate()
	r.table[id] = &Subtask{ID: id, Kind: SubtaskPromise, RequestID: requestID, Resolve: resolve, Reject: reject}
	return id
}

// NewCallbackSubtask registers a subtask that may be resumed repeatedly
// until explicitly deleted.
func (r *SubtaskRegistry) NewCallbackSubtask(callback func(any)) SubtaskID {
	id := r.allocate()
	r.table[id] = &Subtask{ID: id, Kind: SubtaskCallback, Callback: callback}
	return id
}

// NewTimerSubtask registers a timer subtask. interval marks whether
// the registration survives its own firing.
func (r *SubtaskRegistry) NewTimerSubtask(interval bool, callback func(any)) SubtaskID {
	id := r.allocate()
	r.table[id] = &Subtask{ID: id, Kind: SubtaskTimer, Callback: callback, Interval: interval}
	return id
}

// Get returns the subtask registered under id, or nil.
func (r *SubtaskRegistry) Get(id SubtaskID) *Subtask {
	return r.table[id]
}

// Delete removes a subtask's registration outright.
func (r *SubtaskRegistry) Delete(id SubtaskID) {
	delete(r.table, id)
}

// ResumeFlags carries the Resume/Reject bits an inbound message sets
// when delivering a resumption to a promise subtask.
type ResumeFlags uint32

const (
	FlagResume ResumeFlags = 1 << 31
	FlagReject ResumeFlags = 1 << 30
)

// Resume delivers an inbound resumption to the subtask registered
// under id. A promise subtask is deleted as soon as it resumes,
// regardless of which flag fired, since it may only ever resume once.
// A single-shot timer subtask is deleted after firing; an interval
// timer subtask retains its registration. A callback subtask is never
// deleted by Resume - only an explicit Delete removes it.
func (r *SubtaskRegistry) Resume(id SubtaskID, flags ResumeFlags, value any, err error) *Error {
	sub := r.Get(id)
	if sub == nil {
		return &Error{Code: ErrCodeSubtaskNotFound, Message: "resumeTask named an unregistered subtask"}
	}

	switch sub.Kind {
	case SubtaskPromise:
		defer r.Delete(id)
		if flags&FlagReject != 0 {
			if sub.Reject != nil {
				sub.Reject(err)
			}
			return nil
		}
		if sub.Resolve != nil {
			sub.Resolve(value)
		}
	case SubtaskTimer:
		if sub.Callback != nil {
			sub.Callback(value)
		}
		if !sub.Interval {
			r.Delete(id)
		}
	case SubtaskCallback:
		if sub.Callback != nil {
			sub.Callback(value)
		}
	}
	return nil
}

// CancelSubtask discards id's registration if and only if it names a
// live promise subtask, rejecting it with a cancellation error first so
// its caller's promise settles. Cancelling a callback or timer subtask
// is a silent no-op: a cancellation request only ever expresses "I no
// longer want this request's eventual result", and callback/timer
// subtasks have no single eventual result to withhold.
func (r *SubtaskRegistry) CancelSubtask(id SubtaskID) {
	sub := r.Get(id)
	if sub == nil || sub.Kind != SubtaskPromise {
		return
	}
	r.Delete(id)
	if sub.Reject != nil {
		sub.Reject(newCancellationError(sub.RequestID))
	}
}

// CancelRequest rejects every live promise subtask created under
// requestID with a cancellation error and deletes its registration.
// Callback and timer subtasks are left untouched - a cancellation only
// ever means "I no longer want this request's eventual result", not
// "stop everything it started".
func (r *SubtaskRegistry) CancelRequest(requestID string) {
	for id, sub := range r.table {
		if sub.Kind != SubtaskPromise || sub.RequestID != requestID {
			continue
		}
		delete(r.table, id)
		if sub.Reject != nil {
			sub.Reject(newCancellationError(requestID))
		}
	}
}
