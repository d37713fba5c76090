package tenant

import (
	stdctx "context"

	"github.com/latchql/latch/internal/dynamicsql"
	"github.com/latchql/latch/internal/fingerprint"
	"github.com/latchql/latch/internal/ir"
	"github.com/latchql/latch/internal/validate"
)

// Context is the handle a running task receives. Its identity is
// exposed only through a closure, never a plain field: once the owning
// task reaches a terminal disposition, Detach swaps that closure to
// always answer "", so a task that squirreled away its own Context in
// a long-lived callback can never use it to act on behalf of a task
// that no longer exists.
type Context struct {
	id       func() string
	detach   func()
	clock    *Clock
	prng     *PRNG
	subtasks *SubtaskRegistry
	timers   *TimerRegistry
	outbox   *Outbox
	nextReq  func() int32
}

// NewContext constructs a live Context for taskID, backed by the
// tick's shared clock, PRNG, subtask registry, timer registry, and
// outbox, and a request-id allocator shared across every context in
// the tick.
func NewContext(taskID string, clock *Clock, prng *PRNG, subtasks *SubtaskRegistry, timers *TimerRegistry, outbox *Outbox, nextReq func() int32) *Context {
	live := true
	return &Context{
		id: func() string {
			if !live {
				return ""
			}
			return taskID
		},
		detach:   func() { live = false },
		clock:    clock,
		prng:     prng,
		subtasks: subtasks,
		timers:   timers,
		outbox:   outbox,
		nextReq:  nextReq,
	}
}

// ID returns the owning task's id, or "" once the context has been
// detached.
func (c *Context) ID() string { return c.id() }

// Detach severs the context's identity. Called once, when the owning
// task reaches a terminal disposition (completion, error, or
// cancellation).
func (c *Context) Detach() { c.detach() }

// Now returns the tick's frozen timestamp.
func (c *Context) Now() int64 { return c.clock.Now() }

// Random returns the tick's deterministic pseudo-random value in
// [0, 1).
func (c *Context) Random() float64 { return c.prng.Float64() }

// RuntimeQuery is the query handle tenant code passes to ExecuteQuery,
// Commit, and Rollback. A compiled query carries Fingerprint and its
// declared Schema/Params; an unescaped dynamic fragment (built via
// dynamicsql.New/Merge) carries Dynamic=true and Text instead, and an
// empty Fingerprint. Fragments names every compiled fragment fingerprint
// a server-side merge folded into this query; when non-empty on a
// non-dynamic query, Entry must be the parent's own whitelist entry,
// so ExecuteQuery can check Fragments against Entry.AllowedFragments
// before letting the call through.
type RuntimeQuery struct {
	Fingerprint string
	Text        string
	Dynamic     bool
	Schema      ir.ParamSchema
	Params      ir.IRObject
	Fragments   []string
	Entry       *ir.WhitelistEntry
}

// NewRuntimeQueryFromFragment adapts a dynamicsql.Fragment into a
// RuntimeQuery. When frag is dynamic (built by dynamicsql.New, or by a
// Merge that folded in any dynamic participant) the result carries
// Dynamic=true and no fingerprint, mirroring dynamicsql.Fragment's own
// invariant that such a fragment can never be treated as a compiled
// query. When frag instead came from merging only compiled
// participants (dynamicsql.FromCompiled), the result preserves
// parent's fingerprint and carries entry so ExecuteQuery can check the
// merge against the whitelist's own fragment allowance before
// executing it.
func NewRuntimeQueryFromFragment(entry *ir.WhitelistEntry, frag dynamicsql.Fragment, params ir.IRObject) RuntimeQuery {
	return RuntimeQuery{
		Fingerprint: frag.Fingerprint,
		Text:        frag.Text,
		Dynamic:     frag.IsDynamic(),
		Schema:      frag.Params,
		Params:      params,
		Fragments:   frag.Fragments,
		Entry:       entry,
	}
}

// ExecuteQuery requests execution of a query by fingerprint (or, for a
// dynamic fragment, by literal text). It refuses the reserved
// uncompiled-query sentinel outright, since a task that somehow holds
// that fingerprint never went through the whitelist compiler and has
// nothing legitimate to execute; a dynamic query skips that check,
// since it was never meant to carry a fingerprint at all. A
// non-dynamic query naming fragments must carry the whitelist entry
// that allows them - query.Entry.Executable(query.Fragments) - or the
// call is refused before anything else runs, since a merge the
// compiler never statically permitted has no business reaching a
// connection.
//
// The query's own declared parameters are merged with the call-site
// params (call-site values win on overlap), every validator runs
// concurrently against the merged bundle, and a validation failure
// aborts the call before anything reaches the outbox.
func (c *Context) ExecuteQuery(query RuntimeQuery, params ir.IRObject, resolve func(any), reject func(error), validators ...validate.Validator) (SubtaskID, *Error) {
	if !query.Dynamic && fingerprint.IsSentinelInvalid(query.Fingerprint) {
		return 0, newUncompiledQueryError(c.ID())
	}
	if !query.Dynamic && len(query.Fragments) > 0 {
		if query.Entry == nil || !query.Entry.Executable(query.Fragments) {
			return 0, newFragmentNotAllowedError(c.ID(), query.Fragments)
		}
	}

	merged := mergeParams(query.Params, params)
	if errs := validate.Run(stdctx.Background(), query.Schema, merged, ir.IRObject{}, validators); errs != nil {
		return 0, newValidationError(c.ID(), errs)
	}

	id := c.subtasks.NewPromiseSubtask(c.ID(), resolve, reject)
	reqID := c.nextReq()
	c.outbox.Write(reqID, MessageQuery, queryPayload(query, merged))
	return id, nil
}

// Commit emits a COMMIT against the tenant's active transaction.
func (c *Context) Commit(resolve func(any), reject func(error)) SubtaskID {
	return c.emitLiteralQuery("COMMIT", resolve, reject)
}

// Rollback emits a ROLLBACK against the tenant's active transaction.
func (c *Context) Rollback(resolve func(any), reject func(error)) SubtaskID {
	return c.emitLiteralQuery("ROLLBACK", resolve, reject)
}

func (c *Context) emitLiteralQuery(text string, resolve func(any), reject func(error)) SubtaskID {
	id := c.subtasks.NewPromiseSubtask(c.ID(), resolve, reject)
	reqID := c.nextReq()
	c.outbox.Write(reqID, MessageQuery, ir.IRObject{
		"text":      ir.IRString(text),
		"params":    ir.IRObject{},
		"fragments": ir.IRArray{},
	})
	return id
}

// Fetch delegates to the platform fetch on the tenant's behalf,
// injecting a RequestId header carrying the owning context's id so the
// host can correlate the sub-fetch back to this request.
func (c *Context) Fetch(url string, opts ir.IRObject, resolve func(any), reject func(error)) SubtaskID {
	id := c.subtasks.NewPromiseSubtask(c.ID(), resolve, reject)
	reqID := c.nextReq()
	c.outbox.Write(reqID, MessageFetch, ir.IRObject{
		"url":  ir.IRString(url),
		"opts": withRequestIDHeader(opts, c.ID()),
	})
	return id
}

// CreateTimer registers a new timer subtask against the tenant's
// ceiling and writes the corresponding outbox message.
func (c *Context) CreateTimer(delayMillis int64, interval bool, callback func(any)) (SubtaskID, *Error) {
	id := c.subtasks.NewTimerSubtask(interval, callback)
	if err := c.timers.TryCreate(int32(id), c.ID()); err != nil {
		c.subtasks.Delete(id)
		return 0, err
	}

	reqID := c.nextReq()
	c.outbox.Write(reqID, MessageCreateTimer, ir.IRObject{
		"delay_ms":   ir.IRInt(delayMillis),
		"interval":   ir.IRBool(interval),
		"subtask_id": ir.IRInt(int64(id)),
	})
	return id, nil
}

// DeleteTimer removes a timer subtask and writes the corresponding
// outbox message.
func (c *Context) DeleteTimer(id SubtaskID) {
	c.timers.Delete(int32(id))
	c.subtasks.Delete(id)

	reqID := c.nextReq()
	c.outbox.Write(reqID, MessageDeleteTimer, ir.IRObject{
		"subtask_id": ir.IRInt(int64(id)),
	})
}

// Log writes a log message to the outbox.
func (c *Context) Log(level string, message string) {
	reqID := c.nextReq()
	c.outbox.Write(reqID, MessageLog, ir.IRObject{
		"level":   ir.IRString(level),
		"message": ir.IRString(message),
	})
}

// mergeParams combines a query's own declared parameter values with
// the call-site params, with the call-site value winning on overlap.
func mergeParams(base, overlay ir.IRObject) ir.IRObject {
	merged := make(ir.IRObject, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// queryPayload builds the outbox Query message body: the fingerprint
// for a compiled query, or the literal text for a dynamic one, plus the
// merged params and the list of participating fragment fingerprints.
func queryPayload(query RuntimeQuery, params ir.IRObject) ir.IRObject {
	fragments := make(ir.IRArray, len(query.Fragments))
	for i, f := range query.Fragments {
		fragments[i] = ir.IRString(f)
	}

	payload := ir.IRObject{
		"params":    params,
		"fragments": fragments,
	}
	if query.Dynamic {
		payload["text"] = ir.IRString(query.Text)
	} else {
		payload["fingerprint"] = ir.IRString(query.Fingerprint)
	}
	return payload
}

// withRequestIDHeader returns a copy of opts with a "RequestId" header
// added to (or overwritten in) its "headers" object.
func withRequestIDHeader(opts ir.IRObject, requestID string) ir.IRObject {
	merged := make(ir.IRObject, len(opts)+1)
	for k, v := range opts {
		merged[k] = v
	}

	headers := ir.IRObject{}
	if existing, ok := merged["headers"].(ir.IRObject); ok {
		for k, v := range existing {
			headers[k] = v
		}
	}
	headers["RequestId"] = ir.IRString(requestID)
	merged["headers"] = headers
	return merged
}
