package sqlstore

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations matches the PBKDF2 work factor of existing account rows
	DefaultIterations = 100000

	saltSize = 16
	keySize  = sha512.Size
)

// HashPassword derives a hex-encoded PBKDF2-HMAC-SHA512 key. A nil salt
// generates a fresh random one. The hex salt is returned alongside.
func HashPassword(password string, salt []byte, iterations int) (hashHex, saltHex string, err error) {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return "", "", fmt.Errorf("generate salt: %w", err)
		}
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, keySize, sha512.New)
	return hex.EncodeToString(key), hex.EncodeToString(salt), nil
}

// VerifyPassword reports whether password matches the stored hash and salt
func VerifyPassword(password, hashHex, saltHex string, iterations int) (bool, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}
	got := pbkdf2.Key([]byte(password), salt, iterations, keySize, sha512.New)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
