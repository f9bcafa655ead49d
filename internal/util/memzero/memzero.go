// Package memzero wipes key material held in byte slices.
package memzero

import "crypto/subtle"

// Zero overwrites b with zeros. The copy goes through crypto/subtle so it is
// not optimised away as a dead store.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}

// All zeros every slice in bufs. Nil entries are skipped.
func All(bufs ...[]byte) {
	for _, b := range bufs {
		Zero(b)
	}
}
