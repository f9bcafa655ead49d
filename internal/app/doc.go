// Package app wires ciphersock's dependencies for the command-line tools.
//
// It turns a Config into the concrete stores, auth provider, metrics and
// logger, and hands commands ready-made session and listener options.
package app
