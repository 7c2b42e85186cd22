package attendance

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashPassword returns the hex SHA-256 digest stored for operator accounts.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// CheckPassword compares password against a stored digest.
func CheckPassword(hash, password string) bool {
	want := strings.ToLower(strings.TrimSpace(hash))
	got := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
