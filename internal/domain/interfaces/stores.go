package interfaces

// AuthSecretStore persists the pre-shared authentication secret, sealed under
// a passphrase.
type AuthSecretStore interface {
	SaveAuthSecret(passphrase string, secret []byte) error
	LoadAuthSecret(passphrase string) ([]byte, error)
}

// AllowListStore persists the source-address allow-list used by the listener.
type AllowListStore interface {
	AddAllowed(entry string) error
	RemoveAllowed(entry string) error
	LoadAllowList() ([]string, error)
}
