package utils

import "golang.org/x/crypto/bcrypt"

// dummyHash is a bcrypt hash of an unguessable throwaway value.  Login
// verifies against it when the email is unknown so both failure paths
// cost one bcrypt comparison and cannot be told apart by timing.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// BurnVerify performs a throwaway bcrypt comparison.  Called on the
// unknown-email path so it takes as long as a real mismatch.
func BurnVerify(plain string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(plain))
}
