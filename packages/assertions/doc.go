// Package assertions evaluates step assertions and provides the JSON Schema
// validator behind the schema() helper.
//
// Every assertion of a step is evaluated, in order, even after one fails, so
// a report shows all of them. Results keep the expression, the pass flag and
// the reason for a failure.
package assertions
