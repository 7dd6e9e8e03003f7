// Package cmd implements the flowspec CLI commands using Cobra.
//
// Available commands:
//   - run: Execute scenario files
//   - validate: Check scenario structure without executing
//   - list: Display the step tree of each scenario
//   - init: Create a config file and an example scenario
//   - version: Show flowspec version information
//
// The run command supports output formats, global variables, abort
// policies and a watch mode that re-runs scenarios when files change.
package cmd
