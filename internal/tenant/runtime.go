package tenant

import (
	"fmt"

	"github.com/latchql/latch/internal/ir"
)

// errCancelTargetRequired is returned by the __cancel builtin when its
// argument is not the target request id it needs to scope cancellation.
var errCancelTargetRequired = fmt.Errorf("__cancel requires the target request id as a string argument")

// TaskFunc is one registered unit of tenant logic. It receives its
// own Context and the arguments the inbox message carried, and
// returns a value for the eventual CallResult, or an error for the
// eventual CallError.
type TaskFunc func(ctx *Context, args ir.IRValue) (ir.IRValue, error)

// InboxMessage is one message a tick dispatches: a call to a named
// task, or to one of the two builtin task names.
type InboxMessage struct {
	ReqID  int32
	TaskID string
	Task   string
	Args   ir.IRValue
	// SubtaskID is set on a resumption or cancellation message, naming
	// the subtask the message targets rather than starting a new task.
	SubtaskID SubtaskID
	Resume    bool
	ResumeFlags ResumeFlags
	Cancel    bool
}

// Runtime holds everything that persists across ticks for one tenant:
// its registered tasks, its live subtasks and timers, and the request
// id counter its outbox messages are packed against. A Runtime's
// RunTasks method is never called concurrently with itself - the host
// guarantees strict batch-serial dispatch.
type Runtime struct {
	tasks         map[string]TaskFunc
	subtasks      *SubtaskRegistry
	timers        *TimerRegistry
	lastRequestID int32
}

// NewRuntime constructs an empty runtime with the given timer ceiling
// (DefaultTimerCeiling when zero).
func NewRuntime(timerCeiling int) *Runtime {
	return &Runtime{
		tasks:    make(map[string]TaskFunc),
		subtasks: NewSubtaskRegistry(),
		timers:   NewTimerRegistry(timerCeiling),
	}
}

// Register adds a named task. Registering the same name twice is
// rejected - a tenant's task table is fixed once built, not
// overridable at runtime.
func (r *Runtime) Register(name string, fn TaskFunc) error {
	if _, exists := r.tasks[name]; exists {
		return newDuplicateRegistrationError(name)
	}
	r.tasks[name] = fn
	return nil
}

func (r *Runtime) nextRequestID() int32 {
	r.lastRequestID++
	return r.lastRequestID
}

// RunTasks processes one batch of inbound messages to completion and
// returns the outbox produced along the way. It never blocks: every
// task function it calls must return without waiting on I/O, since
// suspension is expressed by registering a subtask instead.
//
// A panic escaping a task function is recovered and converted into a
// CallError for that message alone - the tick continues dispatching
// the rest of the batch rather than aborting.
func (r *Runtime) RunTasks(inbox []InboxMessage, nowMillis int64) *Outbox {
	clock := NewClock(nowMillis)
	prng := NewPRNG(nowMillis)
	outbox := NewOutbox()

	for _, msg := range inbox {
		r.dispatch(msg, clock, prng, outbox)
	}

	return outbox
}

func (r *Runtime) dispatch(msg InboxMessage, clock *Clock, prng *PRNG, outbox *Outbox) {
	if msg.Cancel {
		r.subtasks.CancelSubtask(msg.SubtaskID)
		return
	}
	if msg.Resume {
		if err := r.subtasks.Resume(msg.SubtaskID, msg.ResumeFlags, msg.Args, nil); err != nil {
			outbox.Write(msg.ReqID, MessageCallError, ir.IRString(err.Error()))
		}
		return
	}

	fn, ok := r.tasks[msg.Task]
	if !ok {
		fn, ok = builtins[msg.Task]
	}
	if !ok {
		outbox.Write(msg.ReqID, MessageCallError, ir.IRString(newUnknownTaskError(msg.Task).Error()))
		return
	}

	ctx := NewContext(msg.TaskID, clock, prng, r.subtasks, r.timers, outbox, r.nextRequestID)
	defer ctx.Detach()

	result, err := r.invoke(fn, ctx, msg.Args)
	if err != nil {
		outbox.Write(msg.ReqID, MessageCallError, ir.IRString(err.Error()))
		return
	}
	outbox.Write(msg.ReqID, MessageCallResult, result)
}

// invoke calls fn, converting a panic into an error so one runaway
// task cannot abort the rest of the tick's dispatch.
func (r *Runtime) invoke(fn TaskFunc, ctx *Context, args ir.IRValue) (result ir.IRValue, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn(ctx, args)
}

// builtins are the two task names every tenant supports without
// registration: __init runs once when the tenant is provisioned;
// __cancel(requestId) rejects every promise-backed subtask belonging to
// requestId - callback and timer subtasks are left running, since they
// belong to the infrastructure, not the cancelled request.
var builtins = map[string]TaskFunc{
	"__init": func(ctx *Context, args ir.IRValue) (ir.IRValue, error) { return ir.IRNull{}, nil },
	"__cancel": func(ctx *Context, args ir.IRValue) (ir.IRValue, error) {
		target, ok := args.(ir.IRString)
		if !ok {
			return nil, errCancelTargetRequired
		}
		ctx.subtasks.CancelRequest(string(target))
		return ir.IRNull{}, nil
	},
}
