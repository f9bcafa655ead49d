package domain

import (
	interfaces "ciphersock/internal/domain/interfaces"
	types "ciphersock/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	PeerAddr    = types.PeerAddr
	Fingerprint = types.Fingerprint
	State       = types.State
	PeerInfo    = types.PeerInfo
	KeyData     = types.KeyData
	Message     = types.Message
)

// Connection states.
const (
	StateDisconnected  = types.StateDisconnected
	StateConnected     = types.StateConnected
	StateAuthenticated = types.StateAuthenticated
	StateEncrypted     = types.StateEncrypted
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	AuthProvider    = interfaces.AuthProvider
	AuthSecretStore = interfaces.AuthSecretStore
	AllowListStore  = interfaces.AllowListStore
)
