package types

import "time"

// Message is one decrypted inbound application payload queued by the
// listener for its consumer.
type Message struct {
	Peer     PeerAddr  `json:"peer"`
	Payload  []byte    `json:"payload"`
	Received time.Time `json:"received"`
}
