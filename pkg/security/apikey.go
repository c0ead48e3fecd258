package security

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrHashingFailed = errors.New("api key hashing failed")

// KeyVerifier checks caller credentials for the inbound API. Keys are stored
// bcrypt-hashed in configuration; the clear key never persists server-side.
type KeyVerifier interface {
	Hash(key string) (string, error)
	Verify(hashedKey, key string) error
}

type bcryptVerifier struct {
	cost int
}

func NewBcryptVerifier(cost int) KeyVerifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptVerifier{cost: cost}
}

func (b *bcryptVerifier) Hash(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), b.cost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(bytes), nil
}

func (b *bcryptVerifier) Verify(hashedKey, key string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedKey), []byte(key))
}

// ConstantTimeEqual compares two strings without leaking length-prefix
// timing, for non-hashed shared secrets.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
