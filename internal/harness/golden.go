package harness

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/latchql/latch/internal/ir"
	"github.com/latchql/latch/internal/tenant"
)

// TraceSnapshot is the JSON-comparable shape of a scenario run: one
// entry per batch, each holding the outbox messages that batch
// produced.
type TraceSnapshot struct {
	ScenarioName string          `json:"scenario"`
	Batches      []BatchSnapshot `json:"batches"`
}

// BatchSnapshot is one batch's outbox.
type BatchSnapshot struct {
	NowMillis int64                   `json:"now_millis"`
	Messages  []OutboxMessageSnapshot `json:"messages"`
}

// OutboxMessageSnapshot mirrors tenant.OutboxMessage with its type
// byte rendered as a name instead of a number, so a golden diff reads
// as "call_result" rather than "144".
type OutboxMessageSnapshot struct {
	Type    string          `json:"type"`
	ID      uint32          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

var messageTypeNames = map[tenant.MessageType]string{
	tenant.MessageCallResult:  "call_result",
	tenant.MessageCallError:   "call_error",
	tenant.MessageFetch:       "fetch",
	tenant.MessageLog:         "log",
	tenant.MessageQuery:       "query",
	tenant.MessageCreateTimer: "create_timer",
	tenant.MessageDeleteTimer: "delete_timer",
}

func messageTypeName(t tenant.MessageType) string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

func newSnapshot(scenario *Scenario, trace [][]tenant.OutboxMessage) (TraceSnapshot, error) {
	snap := TraceSnapshot{ScenarioName: scenario.Name, Batches: make([]BatchSnapshot, len(trace))}
	for i, messages := range trace {
		msgSnaps := make([]OutboxMessageSnapshot, len(messages))
		for j, m := range messages {
			payload, err := ir.MarshalIRValue(m.Payload)
			if err != nil {
				return TraceSnapshot{}, err
			}
			msgSnaps[j] = OutboxMessageSnapshot{Type: messageTypeName(m.Type), ID: m.ID, Payload: payload}
		}
		snap.Batches[i] = BatchSnapshot{NowMillis: scenario.Batches[i].NowMillis, Messages: msgSnaps}
	}
	return snap, nil
}

// RunWithGolden runs scenario and compares its trace against the
// fixture at testdata/golden/<name>.golden, failing t if they diverge.
// Run the test suite with -update to regenerate fixtures after an
// intentional behavior change.
func RunWithGolden(t *testing.T, scenario *Scenario) {
	t.Helper()

	trace, err := scenario.Run()
	if err != nil {
		t.Fatalf("scenario %s failed: %v", scenario.Name, err)
	}

	snapshot, err := newSnapshot(scenario, trace)
	if err != nil {
		t.Fatalf("snapshot trace for %s: %v", scenario.Name, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		t.Fatalf("marshal trace for %s: %v", scenario.Name, err)
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, scenario.Name, buf.Bytes())
}
