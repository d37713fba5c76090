package harness

import "github.com/latchql/latch/internal/tenant"

// Batch is one call to Runtime.RunTasks: an inbox plus the frozen
// tick time it should be dispatched at.
type Batch struct {
	NowMillis int64
	Inbox     []tenant.InboxMessage
}

// Scenario describes one conformance run: a fixed task registration
// replayed against a sequence of batches, with every batch's outbox
// captured into the resulting Trace in order.
type Scenario struct {
	Name         string
	Tasks        map[string]tenant.TaskFunc
	TimerCeiling int
	Batches      []Batch
}

// Run executes the scenario against a freshly constructed Runtime and
// returns the outbox messages produced by each batch, in batch order.
func (s *Scenario) Run() ([][]tenant.OutboxMessage, error) {
	rt := tenant.NewRuntime(s.TimerCeiling)
	for name, fn := range s.Tasks {
		if err := rt.Register(name, fn); err != nil {
			return nil, err
		}
	}

	trace := make([][]tenant.OutboxMessage, len(s.Batches))
	for i, batch := range s.Batches {
		outbox := rt.RunTasks(batch.Inbox, batch.NowMillis)
		trace[i] = outbox.Messages()
	}
	return trace, nil
}
