// Package session is the client side of a ciphersock connection.
//
// A Session dials the server with bounded retries, runs the optional
// authentication exchange and the key-exchange handshake, and then carries
// encrypted request/reply traffic until Disconnect. Run wraps the lifecycle
// for callers that want the connection torn down on every exit path.
package session
