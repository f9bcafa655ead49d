// Package commands defines the ciphersock client CLI.
//
// Commands
//
//   - init    Create (or import) the pre-shared auth secret
//   - allow   Edit the allow-list used by ciphersockd --verify-source
//   - send    Connect to a server, send one message and print the reply
//   - ping    Measure connect, handshake and round-trip time
//
// The root command builds an app.Wire from the persistent flags before any
// subcommand runs.
package commands
