package relay

import (
	"crypto/rand"
	"encoding/hex"
)

// NewMessageID returns 14 hex characters from 7 random bytes.
func NewMessageID() (string, error) {
	var b [7]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
