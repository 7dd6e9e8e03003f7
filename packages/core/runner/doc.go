// Package runner executes scenarios: setup, main steps and teardown, with
// conditional branches, loops and bounded parallel blocks.
//
// Every step moves from pending to running and ends passed, failed, skipped
// or error. Control steps are reported before the steps they contain, and
// parallel results are reported in source order. Teardown runs after setup,
// even when the run was cancelled or a step aborted the scenario.
package runner
