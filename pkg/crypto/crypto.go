package crypto

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost is the bcrypt cost used when no cost is configured.
const DefaultHashCost = bcrypt.DefaultCost

// HashPassword returns a bcrypt hash of the supplied password at the given
// cost. Costs outside bcrypt's supported range fall back to DefaultHashCost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultHashCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares the hashed password with the plaintext candidate.
func VerifyPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}
