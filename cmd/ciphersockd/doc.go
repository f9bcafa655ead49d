// Command ciphersockd runs a ciphersock listener that answers every message
// with an echo of its payload, optionally prefixed.
//
// Usage
//
//	ciphersockd [--listen 127.0.0.1:7878] [--verify-source] [--reply-prefix re:]
//	            [--metrics-addr :9108] [-p passphrase | --psk-passphrase words]
//
// Behaviour
//
//   - With --verify-source, peers are gated by the allow-list kept in
//     --home (edit it with "ciphersock allow").
//   - With -p or --psk-passphrase, peers must pass the pre-shared secret
//     challenge before the key exchange.
//   - With --metrics-addr, Prometheus metrics are served on /metrics.
//   - SIGINT or SIGTERM closes every peer and exits.
package main
