package tenant

import (
	stdctx "context"
	"testing"

	"github.com/latchql/latch/internal/dynamicsql"
	"github.com/latchql/latch/internal/fingerprint"
	"github.com/latchql/latch/internal/ir"
	"github.com/latchql/latch/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTasksDispatchesRegisteredTask(t *testing.T) {
	rt := NewRuntime(0)
	require.NoError(t, rt.Register("echo", func(ctx *Context, args ir.IRValue) (ir.IRValue, error) {
		return args, nil
	}))

	out := rt.RunTasks([]InboxMessage{{ReqID: 1, TaskID: "t1", Task: "echo", Args: ir.IRString("hi")}}, 1000)
	require.Len(t, out.Messages(), 1)
	assert.Equal(t, MessageCallResult, out.Messages()[0].Type)
}

func TestRunTasksReportsUnknownTaskAsCallError(t *testing.T) {
	rt := NewRuntime(0)
	out := rt.RunTasks([]InboxMessage{{ReqID: 1, TaskID: "t1", Task: "missing"}}, 1000)
	require.Len(t, out.Messages(), 1)
	assert.Equal(t, MessageCallError, out.Messages()[0].Type)
}

func TestRunTasksContinuesAfterPanickingTask(t *testing.T) {
	rt := NewRuntime(0)
	require.NoError(t, rt.Register("boom", func(ctx *Context, args ir.IRValue) (ir.IRValue, error) {
		panic("kaboom")
	}))
	require.NoError(t, rt.Register("ok", func(ctx *Context, args ir.IRValue) (ir.IRValue, error) {
		return ir.IRBool(true), nil
	}))

	out := rt.RunTasks([]InboxMessage{
		{ReqID: 1, TaskID: "t1", Task: "boom"},
		{ReqID: 2, TaskID: "t2", Task: "ok"},
	}, 1000)

	require.Len(t, out.Messages(), 2)
	assert.Equal(t, MessageCallError, out.Messages()[0].Type)
	assert.Equal(t, MessageCallResult, out.Messages()[1].Type)
}

func TestRunTasksFreezesClockWithinOneTick(t *testing.T) {
	rt := NewRuntime(0)
	var seen []int64
	require.NoError(t, rt.Register("tick", func(ctx *Context, args ir.IRValue) (ir.IRValue, error) {
		seen = append(seen, ctx.Now())
		seen = append(seen, ctx.Now())
		return ir.IRNull{}, nil
	}))

	rt.RunTasks([]InboxMessage{{ReqID: 1, TaskID: "t1", Task: "tick"}}, 5000)
	require.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	rt := NewRuntime(0)
	fn := func(ctx *Context, args ir.IRValue) (ir.IRValue, error) { return ir.IRNull{}, nil }
	require.NoError(t, rt.Register("dup", fn))
	assert.Error(t, rt.Register("dup", fn))
}

func TestSubtaskRegistryAllocatesMonotonicIncreasingIDs(t *testing.T) {
	reg := NewSubtaskRegistry()
	var ids []SubtaskID
	for i := 0; i < 5; i++ {
		ids = append(ids, reg.NewCallbackSubtask(func(any) {}))
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
}

func TestCancelSubtaskDiscardsOnlyPromiseSubtasks(t *testing.T) {
	reg := NewSubtaskRegistry()
	var rejected error
	promiseID := reg.NewPromiseSubtask("t1", func(any) {}, func(err error) { rejected = err })
	callbackID := reg.NewCallbackSubtask(func(any) {})

	reg.CancelSubtask(promiseID)
	reg.CancelSubtask(callbackID)

	assert.Nil(t, reg.Get(promiseID))
	assert.NotNil(t, reg.Get(callbackID))
	require.NotNil(t, rejected)
	var tenantErr *Error
	require.ErrorAs(t, rejected, &tenantErr)
	assert.Equal(t, ErrCodeCancelled, tenantErr.Code)
}

func TestCancelRequestRejectsOnlyMatchingPromiseSubtasks(t *testing.T) {
	reg := NewSubtaskRegistry()
	var rejectedA, rejectedB error
	fired := 0

	idA := reg.NewPromiseSubtask("req-a", func(any) {}, func(err error) { rejectedA = err })
	idB := reg.NewPromiseSubtask("req-b", func(any) {}, func(err error) { rejectedB = err })
	timerID := reg.NewTimerSubtask(true, func(any) { fired++ })

	reg.CancelRequest("req-a")

	assert.Nil(t, reg.Get(idA))
	require.NotNil(t, rejectedA)
	var tenantErr *Error
	require.ErrorAs(t, rejectedA, &tenantErr)
	assert.Equal(t, ErrCodeCancelled, tenantErr.Code)

	assert.NotNil(t, reg.Get(idB))
	assert.Nil(t, rejectedB)

	assert.NotNil(t, reg.Get(timerID))
	assert.Equal(t, 0, fired)
}

func TestResumeDeletesSingleShotTimerButRetainsInterval(t *testing.T) {
	reg := NewSubtaskRegistry()
	fired := 0
	oneShot := reg.NewTimerSubtask(false, func(any) { fired++ })
	interval := reg.NewTimerSubtask(true, func(any) { fired++ })

	reg.Resume(oneShot, FlagResume, nil, nil)
	reg.Resume(interval, FlagResume, nil, nil)

	assert.Nil(t, reg.Get(oneShot))
	assert.NotNil(t, reg.Get(interval))
	assert.Equal(t, 2, fired)
}

func TestContextExecuteQueryRefusesSentinelFingerprint(t *testing.T) {
	rt := NewRuntime(0)
	outbox := NewOutbox()
	ctx := NewContext("t1", NewClock(0), NewPRNG(0), rt.subtasks, rt.timers, outbox, rt.nextRequestID)

	query := RuntimeQuery{Fingerprint: fingerprint.SentinelInvalid()}
	_, err := ctx.ExecuteQuery(query, ir.IRObject{}, func(any) {}, func(error) {})
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeUncompiledQuery, err.Code)
}

func TestContextExecuteQueryMergesParamsAndValidates(t *testing.T) {
	rt := NewRuntime(0)
	outbox := NewOutbox()
	ctx := NewContext("t1", NewClock(0), NewPRNG(0), rt.subtasks, rt.timers, outbox, rt.nextRequestID)

	query := RuntimeQuery{
		Fingerprint: "abc",
		Schema:      ir.ParamSchema{{Name: "id", Type: ir.ParamInt}},
		Params:      ir.IRObject{"id": ir.IRInt(1)},
		Fragments:   []string{"frag1"},
		Entry:       &ir.WhitelistEntry{Fingerprint: "abc", AllowedFragments: []string{"frag1"}},
	}

	_, err := ctx.ExecuteQuery(query, ir.IRObject{}, func(any) {}, func(error) {})
	require.Nil(t, err)
	require.Len(t, outbox.Messages(), 1)

	payload, ok := outbox.Messages()[0].Payload.(ir.IRObject)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("abc"), payload["fingerprint"])
	params, ok := payload["params"].(ir.IRObject)
	require.True(t, ok)
	assert.Equal(t, ir.IRInt(1), params["id"])
	fragments, ok := payload["fragments"].(ir.IRArray)
	require.True(t, ok)
	assert.Equal(t, ir.IRArray{ir.IRString("frag1")}, fragments)
}

func TestContextExecuteQueryRejectsFailedValidation(t *testing.T) {
	rt := NewRuntime(0)
	outbox := NewOutbox()
	ctx := NewContext("t1", NewClock(0), NewPRNG(0), rt.subtasks, rt.timers, outbox, rt.nextRequestID)

	query := RuntimeQuery{
		Fingerprint: "abc",
		Schema:      ir.ParamSchema{{Name: "id", Type: ir.ParamInt}},
		Params:      ir.IRObject{"id": ir.IRInt(1)},
	}
	reject := func(ctx stdctx.Context, params ir.IRObject, session ir.IRObject) *validate.FieldError {
		return &validate.FieldError{Field: "id", Message: "not owned by caller"}
	}

	_, err := ctx.ExecuteQuery(query, ir.IRObject{}, func(any) {}, func(error) {}, reject)
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeValidationFailed, err.Code)
	assert.Empty(t, outbox.Messages())
}

func TestContextExecuteQueryAllowsDynamicFragment(t *testing.T) {
	rt := NewRuntime(0)
	outbox := NewOutbox()
	ctx := NewContext("t1", NewClock(0), NewPRNG(0), rt.subtasks, rt.timers, outbox, rt.nextRequestID)

	frag := dynamicsql.New("SELECT * FROM widgets WHERE owner = $1", ir.ParamSchema{{Name: "owner", Type: ir.ParamString}})
	query := NewRuntimeQueryFromFragment(nil, frag, ir.IRObject{"owner": ir.IRString("alice")})

	_, err := ctx.ExecuteQuery(query, ir.IRObject{}, func(any) {}, func(error) {})
	require.Nil(t, err)
	payload, ok := outbox.Messages()[0].Payload.(ir.IRObject)
	require.True(t, ok)
	assert.Equal(t, ir.IRString(frag.Text), payload["text"])
	_, hasFingerprint := payload["fingerprint"]
	assert.False(t, hasFingerprint)
}

func TestContextExecuteQueryAllowsMergedCompiledFragment(t *testing.T) {
	rt := NewRuntime(0)
	outbox := NewOutbox()
	ctx := NewContext("t1", NewClock(0), NewPRNG(0), rt.subtasks, rt.timers, outbox, rt.nextRequestID)

	parent := dynamicsql.FromCompiled("parent-fp", "SELECT * FROM widgets WHERE owner = $1", ir.ParamSchema{{Name: "owner", Type: ir.ParamString}})
	fragment := dynamicsql.FromCompiled("frag-fp", "AND status = $1", ir.ParamSchema{{Name: "status", Type: ir.ParamString}})
	merged, err := dynamicsql.Merge(parent, nil, fragment)
	require.NoError(t, err)

	entry := &ir.WhitelistEntry{Fingerprint: "parent-fp", AllowedFragments: []string{"frag-fp"}}
	query := NewRuntimeQueryFromFragment(entry, merged, ir.IRObject{"owner": ir.IRString("alice")})

	_, terr := ctx.ExecuteQuery(query, ir.IRObject{}, func(any) {}, func(error) {})
	require.Nil(t, terr)
	require.Len(t, outbox.Messages(), 1)
	payload, ok := outbox.Messages()[0].Payload.(ir.IRObject)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("parent-fp"), payload["fingerprint"])
}

func TestContextExecuteQueryRefusesFragmentNotInWhitelistAllowance(t *testing.T) {
	rt := NewRuntime(0)
	outbox := NewOutbox()
	ctx := NewContext("t1", NewClock(0), NewPRNG(0), rt.subtasks, rt.timers, outbox, rt.nextRequestID)

	parent := dynamicsql.FromCompiled("parent-fp", "SELECT * FROM widgets WHERE owner = $1", ir.ParamSchema{{Name: "owner", Type: ir.ParamString}})
	fragment := dynamicsql.FromCompiled("frag-fp", "AND status = $1", ir.ParamSchema{{Name: "status", Type: ir.ParamString}})
	merged, err := dynamicsql.Merge(parent, nil, fragment)
	require.NoError(t, err)

	entry := &ir.WhitelistEntry{Fingerprint: "parent-fp", AllowedFragments: []string{"some-other-fragment"}}
	query := NewRuntimeQueryFromFragment(entry, merged, ir.IRObject{"owner": ir.IRString("alice")})

	_, terr := ctx.ExecuteQuery(query, ir.IRObject{}, func(any) {}, func(error) {})
	require.NotNil(t, terr)
	assert.Equal(t, ErrCodeFragmentNotAllowed, terr.Code)
	assert.Empty(t, outbox.Messages())
}

func TestContextCommitAndRollbackEmitLiteralQueries(t *testing.T) {
	rt := NewRuntime(0)
	outbox := NewOutbox()
	ctx := NewContext("t1", NewClock(0), NewPRNG(0), rt.subtasks, rt.timers, outbox, rt.nextRequestID)

	ctx.Commit(func(any) {}, func(error) {})
	ctx.Rollback(func(any) {}, func(error) {})

	require.Len(t, outbox.Messages(), 2)
	first, ok := outbox.Messages()[0].Payload.(ir.IRObject)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("COMMIT"), first["text"])
	second, ok := outbox.Messages()[1].Payload.(ir.IRObject)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("ROLLBACK"), second["text"])
}

func TestContextFetchInjectsRequestIDHeader(t *testing.T) {
	rt := NewRuntime(0)
	outbox := NewOutbox()
	ctx := NewContext("t1", NewClock(0), NewPRNG(0), rt.subtasks, rt.timers, outbox, rt.nextRequestID)

	ctx.Fetch("https://example.invalid/widgets", ir.IRObject{}, func(any) {}, func(error) {})

	require.Len(t, outbox.Messages(), 1)
	msg := outbox.Messages()[0]
	assert.Equal(t, MessageFetch, msg.Type)
	payload, ok := msg.Payload.(ir.IRObject)
	require.True(t, ok)
	opts, ok := payload["opts"].(ir.IRObject)
	require.True(t, ok)
	headers, ok := opts["headers"].(ir.IRObject)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("t1"), headers["RequestId"])
}

func TestCancelBuiltinRejectsOwningPromiseSubtasksOnly(t *testing.T) {
	rt := NewRuntime(0)
	require.NoError(t, rt.Register("spawn", func(ctx *Context, args ir.IRValue) (ir.IRValue, error) {
		ctx.subtasks.NewPromiseSubtask(ctx.ID(), func(any) {}, func(error) {})
		return ir.IRNull{}, nil
	}))

	rt.RunTasks([]InboxMessage{{ReqID: 1, TaskID: "req-a", Task: "spawn"}}, 1000)
	require.Equal(t, 1, len(rt.subtasks.table))

	out := rt.RunTasks([]InboxMessage{{ReqID: 2, TaskID: "req-b", Task: "__cancel", Args: ir.IRString("req-a")}}, 1000)
	require.Len(t, out.Messages(), 1)
	assert.Equal(t, MessageCallResult, out.Messages()[0].Type)
	assert.Empty(t, rt.subtasks.table)
}

func TestTimerCeilingRejectsBeyondLimit(t *testing.T) {
	rt := NewRuntime(2)
	outbox := NewOutbox()
	ctx := NewContext("t1", NewClock(0), NewPRNG(0), rt.subtasks, rt.timers, outbox, rt.nextRequestID)

	_, err1 := ctx.CreateTimer(100, false, func(any) {})
	_, err2 := ctx.CreateTimer(100, false, func(any) {})
	_, err3 := ctx.CreateTimer(100, false, func(any) {})

	assert.Nil(t, err1)
	assert.Nil(t, err2)
	require.NotNil(t, err3)
	assert.Equal(t, ErrCodeTimerCeilingExceeded, err3.Code)
}

func TestContextDetachZeroesID(t *testing.T) {
	ctx := NewContext("t1", NewClock(0), NewPRNG(0), NewSubtaskRegistry(), NewTimerRegistry(0), NewOutbox(), func() int32 { return 1 })
	assert.Equal(t, "t1", ctx.ID())
	ctx.Detach()
	assert.Equal(t, "", ctx.ID())
}
