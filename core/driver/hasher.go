package driver

import "golang.org/x/crypto/bcrypt"

// Hasher hashes and verifies driver passwords. Driver credentials are
// deliberately independent of the identity provider (admin-settable), so the
// comparison strategy is pluggable rather than baked into the model.
type Hasher interface {
	Hash(password string) ([]byte, error)
	// Compare returns a non-nil error when password does not match hash.
	Compare(hash []byte, password string) error
}

type bcryptHasher struct {
	cost int
}

func NewBcryptHasher() Hasher {
	return &bcryptHasher{cost: bcrypt.DefaultCost}
}

func (h *bcryptHasher) Hash(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), h.cost)
}

func (h *bcryptHasher) Compare(hash []byte, password string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}
