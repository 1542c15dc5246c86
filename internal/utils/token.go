package utils

// NewInviteToken generates a random invite token: 16 bytes of
// crypto/rand output encoded as 32 hex characters, i.e. 128 bits of
// entropy.  The token doubles as the invite's primary key.
func NewInviteToken() (string, error) {
	return randomHex(16)
}
