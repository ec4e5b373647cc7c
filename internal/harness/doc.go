// Package harness runs conformance scenarios against an external compiler.
//
// A scenario owns one isolated workspace, optionally seeds it with files that
// collide with the compiler's outputs, then invokes the compiler once per step
// and asserts on the exit status, the merged output text and the artifact
// files left in the workspace. The workspace is released when the scenario
// ends, whether assertions pass, fail, or the run aborts.
//
// # Scenario Format
//
// Scenarios are YAML files. They are checked against an embedded CUE schema
// and then decoded strictly, so misspelled keys are rejected:
//
//	name: overwrite_protection
//	description: "Refuse pre-existing outputs unless --overwrite is given"
//	source: ../contracts/Contract.vy
//	requires: [exact_argument_quoting]
//	artifacts: {base_name: Contract, binary_ext: .bin, assembly_ext: .asm}
//	seed: ["${BINARY_FILE}", "${ASSEMBLY_FILE}"]
//	steps:
//	  - name: refuse
//	    args: ["${SOURCE}", "-o", "${WORKSPACE}"]
//	    expect:
//	      - {type: output_matches, pattern: "refusing to overwrite"}
//	      - {type: exit_nonzero}
//	  - name: force
//	    args: ["${SOURCE}", "-o", "${WORKSPACE}", "--overwrite"]
//	    expect:
//	      - {type: exit_code, code: 0}
//	      - {type: artifact_nonempty, kind: binary}
//	      - {type: artifact_nonempty, kind: assembly}
//	      - {type: output_not_matches, pattern: "error|warning|fail"}
//
// Args, env values, dir, seed names and the file and text fields of
// assertions may reference ${WORKSPACE}, ${SOURCE}, ${COMPILER}, ${BINARY},
// ${ASSEMBLY}, ${BINARY_FILE} and ${ASSEMBLY_FILE}. Patterns are not
// expanded. An assertion file that expands to an absolute path is used as
// is; relative names are looked up in the workspace.
//
// Steps inherit the caller's working directory unless the scenario sets
// dir (usually "${WORKSPACE}"). A compiler path containing a separator is
// made absolute before the first step.
//
// # Assertion Types
//
//   - exit_code: exit status equals code
//   - exit_nonzero: exit status is not 0
//   - output_matches / output_not_matches: case-insensitive regular expression
//   - output_contains / output_not_contains: case-folded substring
//   - artifact_exists / artifact_missing: file presence, by kind or file
//   - artifact_empty / artifact_nonempty: zero or nonzero length
//
// # Steps
//
// Steps run sequentially; a later step sees the files an earlier one left
// behind. Assertion failures are recorded and later steps still run. Harness
// errors (workspace creation, seeding, spawning, timeouts) abort the scenario.
//
// # Known Gaps
//
// The forced-overwrite check in OverwriteProtection matches error|warning|fail
// anywhere in the merged output. Benign text such as "--no-warnings" trips it.
package harness
