// Package listener is the server side of a ciphersock connection.
//
// A Listener accepts TCP peers and runs one goroutine per peer: source
// address gate, optional authentication, key-exchange handshake, then a read
// loop that feeds decrypted payloads into a single FIFO queue consumed with
// ReceiveMessage. Replies go back through SendReply. A failure on one peer
// closes that peer only.
package listener
