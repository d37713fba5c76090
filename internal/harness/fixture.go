package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/latchql/latch/internal/ir"
	"github.com/latchql/latch/internal/tenant"
)

// BatchFixture is one Batch's YAML shape: plain values instead of the
// ir.IRValue/tenant.SubtaskID types Batch itself carries, so a
// scenario fixture file has no Go-specific syntax in it.
type BatchFixture struct {
	NowMillis int64            `yaml:"now_millis"`
	Inbox     []InboxFixture   `yaml:"inbox"`
}

// InboxFixture is one InboxMessage's YAML shape.
type InboxFixture struct {
	ReqID  int32                  `yaml:"req_id"`
	TaskID string                 `yaml:"task_id"`
	Task   string                 `yaml:"task"`
	Args   map[string]interface{} `yaml:"args,omitempty"`
}

// ScenarioFixture is a scenario's on-disk YAML shape. It names which
// batches to run but not which Go functions back its tasks - a
// fixture is paired with a task registry at load time, since
// behavior can never be expressed in YAML.
type ScenarioFixture struct {
	Name    string         `yaml:"name"`
	Batches []BatchFixture `yaml:"batches"`
}

// LoadScenarioFixture reads and strictly parses a scenario fixture
// file, rejecting unknown fields so a typo'd key fails loudly instead
// of being silently ignored.
func LoadScenarioFixture(path string) (*ScenarioFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario fixture: %w", err)
	}

	var fixture ScenarioFixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fixture); err != nil {
		return nil, fmt.Errorf("parsing scenario fixture: %w", err)
	}
	if fixture.Name == "" {
		return nil, fmt.Errorf("scenario fixture missing name")
	}
	return &fixture, nil
}

// Build pairs the fixture's batches with tasks to produce a runnable
// Scenario.
func (f *ScenarioFixture) Build(tasks map[string]tenant.TaskFunc, timerCeiling int) (*Scenario, error) {
	scenario := &Scenario{
		Name:         f.Name,
		Tasks:        tasks,
		TimerCeiling: timerCeiling,
		Batches:      make([]Batch, len(f.Batches)),
	}

	for i, bf := range f.Batches {
		inbox := make([]tenant.InboxMessage, len(bf.Inbox))
		for j, mf := range bf.Inbox {
			args, err := argsToIRValue(mf.Args)
			if err != nil {
				return nil, fmt.Errorf("batch %d message %d args: %w", i, j, err)
			}
			inbox[j] = tenant.InboxMessage{ReqID: mf.ReqID, TaskID: mf.TaskID, Task: mf.Task, Args: args}
		}
		scenario.Batches[i] = Batch{NowMillis: bf.NowMillis, Inbox: inbox}
	}

	return scenario, nil
}

// argsToIRValue round-trips a YAML-decoded args map through JSON to
// reach ir.IRValue, since the IR package exposes no public
// map[string]any constructor and a fixture's values are already
// JSON-shaped once YAML has decoded them.
func argsToIRValue(args map[string]interface{}) (ir.IRValue, error) {
	if args == nil {
		return ir.IRObject{}, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return ir.UnmarshalIRValue(data)
}
