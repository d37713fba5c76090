// Package harness provides golden-trace conformance testing for the
// tenant task runtime.
//
// A Scenario registers a fixed set of tasks on a fresh Runtime, feeds
// it one or more inbox batches at deterministic tick times, and
// records every outbox message produced. The recorded Trace is
// compared against a checked-in golden fixture so a behavior change
// in dispatch, subtask resumption, or timer firing shows up as a
// diff against testdata/golden instead of a silent regression.
//
// # Usage
//
//	scenario := &harness.Scenario{
//	    Name:  "checkout_flow",
//	    Tasks: map[string]tenant.TaskFunc{"charge": chargeTask},
//	    Batches: []harness.Batch{
//	        {NowMillis: 1000, Inbox: []tenant.InboxMessage{...}},
//	    },
//	}
//	harness.RunWithGolden(t, scenario)
//
// Traces are serialized field-by-field into a fixed struct shape
// before comparison, so fixtures stay stable across unrelated runtime
// construction details.
package harness
