// Package domain defines core data models and interfaces shared across the app.
// It contains plain types (peer addresses, connection states, key material,
// queued messages) and contracts (auth provider, stores) only.
package domain
