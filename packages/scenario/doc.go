// Package scenario holds the in-memory model of a scenario document and its
// structural validation.
//
// A scenario has setup, main and teardown sequences. Each step is a tagged
// variant (see Kind): a plain HTTP call, or a condition, loop or parallel
// block owning nested sequences. Parse decodes an already parsed document;
// LoadFile reads YAML or JSON from disk first. Validate collects every defect
// into one ValidationError so a user can fix them in a single pass.
package scenario
