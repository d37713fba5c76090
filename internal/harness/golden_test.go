package harness

import (
	"testing"

	"github.com/latchql/latch/internal/ir"
	"github.com/latchql/latch/internal/tenant"
)

func echoTask(ctx *tenant.Context, args ir.IRValue) (ir.IRValue, error) {
	return ir.NewIRObjectFromMap(map[string]ir.IRValue{
		"now":  ir.IRInt(ctx.Now()),
		"echo": args,
	}), nil
}

func TestEchoScenarioGolden(t *testing.T) {
	scenario := &Scenario{
		Name:  "echo_two_batches",
		Tasks: map[string]tenant.TaskFunc{"echo": echoTask},
		Batches: []Batch{
			{
				NowMillis: 1000,
				Inbox: []tenant.InboxMessage{
					{ReqID: 1, TaskID: "t1", Task: "echo", Args: ir.IRString("hello")},
				},
			},
			{
				NowMillis: 2000,
				Inbox: []tenant.InboxMessage{
					{ReqID: 2, TaskID: "t2", Task: "echo", Args: ir.IRInt(42)},
				},
			},
		},
	}

	RunWithGolden(t, scenario)
}

func TestUnknownTaskScenarioGolden(t *testing.T) {
	scenario := &Scenario{
		Name:  "unknown_task",
		Tasks: map[string]tenant.TaskFunc{"echo": echoTask},
		Batches: []Batch{
			{
				NowMillis: 500,
				Inbox: []tenant.InboxMessage{
					{ReqID: 1, TaskID: "t1", Task: "missing", Args: ir.IRNull{}},
				},
			},
		},
	}

	RunWithGolden(t, scenario)
}
