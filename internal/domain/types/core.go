package types

// PeerAddr identifies a connection endpoint by its transport address
// ("host:port").
type PeerAddr string

// String returns the string form of the address.
func (a PeerAddr) String() string { return string(a) }

// Fingerprint is a short identifier for public keys presented in logs.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
