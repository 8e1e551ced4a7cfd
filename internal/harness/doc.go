// Package harness runs conformance scenarios against the engine.
//
// A scenario provisions a fixture network into a fresh in-memory graph,
// runs a list of calls as named participants and checks both each
// call's outcome and the event log the calls left behind. Every run
// uses a fixed id generator and a deterministic clock, so event ids,
// timestamps and hashes are reproducible and can be compared against
// golden snapshots.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: update_owner
//	description: "The owner of a message can hand it to another participant"
//	fixture: ../network.yaml
//	policy: ../../policies/observed.cue   # optional
//	setup:
//	  - as: Level2#bob@email.com
//	    submit: updateErrorMessageStatus
//	    payload: { oldMessage: ErrorMessage#2, newStatus: WORKING }
//	flow:
//	  - as: Member#alice@email.com
//	    submit: updateErrorMessageOwner
//	    payload: { oldMessage: ErrorMessage#1, newOwner: Level2#bob@email.com }
//	    expect:
//	      events: 1
//	  - as: Level3#george@email.com
//	    delete: ErrorMessage#1
//	    expect:
//	      outcome: denied
//	      reason: insufficient-access
//	assertions:
//	  - type: event_contains
//	    kind: ErrorMessageOwnerUpdated
//	    fields: { newOwner: org.securelog.mynetwork.Level2#bob@email.com }
//	  - type: final_state
//	    record: ErrorMessage#1
//	    expect: { owner: Level2#bob@email.com }
//
// Each step names its caller with as and exactly one of submit, get,
// list, exists, create, update or delete. Setup steps must succeed.
// A flow step without expect must succeed too.
//
// # Assertion Types
//
//   - event_contains: an event of the kind carries the fields (subset match)
//   - event_order: event kinds appear in order, gaps allowed
//   - event_count: exact number of events, optionally of one kind
//   - final_state: a record's fields after the flow, or its absence
//   - chain_valid: the hash chain verifies end to end
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/update_owner.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
