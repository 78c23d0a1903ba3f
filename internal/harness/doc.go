// Package harness runs YAML scenarios against the sync engine.
//
// A scenario names the CUE specs to load, a single inbound request, and
// scripts for every concept and lookup the rules touch. The harness runs
// the real engine with deterministic flow tokens and seq numbers, records
// into a fresh SQLite store, and checks the outcome.
//
// # Scenario Format
//
//	name: create_pet
//	description: "A signed-in user creates a pet"
//	specs:
//	  - ../specs/pets.cue
//	flow_token: flow-create-pet
//	request: {path: /pets, name: rex, session: s1}
//	tables:
//	  sessions:
//	    - {token: s1, user_id: u1}
//	concepts:
//	  Pets.create:
//	    - when: {name: rex}
//	      output: {pet: p1}
//	    - fail: "unexpected pet"
//	queries:
//	  Audit.lookup:
//	    - when: {id: 7}
//	      rows: [{ok: true}]
//	expect:
//	  response: {pet: p1}
//	assertions:
//	  - type: trace_contains
//	    action: Pets.create
//	    input: {owner: u1}
//	  - type: final_state
//	    table: outcomes
//	    where: {flow_token: flow-create-pet}
//	    expect: {status: responded}
//
// Tables are created in the scenario database and read by sql_query
// definitions from the specs. final_state assertions can read them, and
// the audit tables (entries, firings, outcomes) too.
//
// # Golden Traces
//
// AssertGolden and RunWithGolden write the action log and the recorded
// firings as canonical JSON under testdata/golden. Run the tests with
// -update to regenerate them.
package harness
