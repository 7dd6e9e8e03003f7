// Package http provides the HTTP transport and request injection used by the
// scenario runner.
//
// It wraps the standard library's http package with:
//   - Configurable timeouts, redirect handling and TLS verification
//   - Context cancellation propagated to every request
//   - Typed TransportError for failures before a response arrives
//   - Request building from step templates (BuildRequest)
//   - Scenario-wide auth (bearer, basic, API key)
//   - Case-insensitive header and cookie lookup on responses
package http
