// Package cryptox wraps password hashing behind a narrow API so the service
// layer never touches bcrypt directly.
package cryptox

import "golang.org/x/crypto/bcrypt"

// HashPassword returns an opaque credential for the given password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored credential.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
