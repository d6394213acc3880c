// Package auth implements credential hashing, token minting, and the
// bearer-token gate used by the HTTP layer.
package auth

import "golang.org/x/crypto/bcrypt"

// dummyHash is verified against when the login identifier matches no user,
// so unknown-user and wrong-password attempts take comparable time.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("placeholder-secret"), bcrypt.DefaultCost)

// HashPassword returns the bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword reports whether password matches the stored hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyDummy burns a bcrypt comparison against a fixed hash so that
// failed logins for unknown identifiers take as long as real ones.
func VerifyDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
