package keygen

import (
	"crypto/rand"
	"encoding/hex"
)

// SessionTokenBytes is the entropy of a session token (256 bits)
const SessionTokenBytes = 32

// SessionToken generates an opaque bearer token
// Format: 64 characters lowercase hex
func SessionToken() (string, error) {
	return randomHex(SessionTokenBytes)
}

// randomHex returns n random bytes hex encoded
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
