// Package metrics holds the Prometheus collectors shared by the listener and
// the client session.
//
// A nil *Handshake is valid and records nothing, so components can run
// without a registry (tests, the CLI client).
package metrics
