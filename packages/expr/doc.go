// Package expr parses and evaluates the assertion and condition language used
// in scenario documents.
//
// Supported syntax:
//   - Literals: numbers, 'strings', "strings", true, false, null, [lists]
//   - Access: response.data.items[0].id, ${variable}
//   - Comparison: ==, !=, >, >=, <, <=
//   - Membership: x in list, key in object, text in string, not in
//   - Logic: and, or, not (&&, ||, ! also accepted), short-circuiting
//   - Helpers: len(x), length(x), matches(x, pattern), contains(x, y),
//     exists(x), schema(value, ref)
//
// Expressions are parsed into a tree and evaluated against an Env. A missing
// operand never aborts a run: the expression counts as false and the reason
// is recorded on the Outcome.
package expr
