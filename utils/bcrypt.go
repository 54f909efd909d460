package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes a login password at bcrypt's default cost.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// ComparePassword reports whether plain matches the stored hash. A nil
// return means the password is correct.
func ComparePassword(hashed string, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
