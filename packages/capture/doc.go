// Package capture extracts values from HTTP responses for use in later steps.
//
// A rule captures from exactly one source:
//   - Response body, with a JSONPath subset ($.a.b, $.a[0], $.a[-1], $.a[*].id)
//     or plain gjson syntax
//   - Response body matched by a regular expression and capture group
//   - Response headers (case-insensitive)
//   - Cookies set by the response (case-insensitive)
//
// The body is parsed once per response no matter how many rules read it.
// Extraction runs on every response, whatever its status code.
package capture
