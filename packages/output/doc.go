// Package output renders scenario results.
//
// Supported output formats:
//   - Console: Human-readable colored step tree
//   - JSON: Machine-readable JSON output
//   - JUnit: JUnit XML format for CI integration
//   - TAP: Test Anything Protocol format
//
// Each formatter is a runner.Sink and can be passed to runner.WithSink.
// Formats that write one document for the whole run implement Flushable.
package output
