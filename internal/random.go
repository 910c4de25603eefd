package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const (
	// RefreshSecretSize is the number of random bytes embedded in every refresh token.
	RefreshSecretSize = 32
	// CSRFTokenSize is the number of random bytes behind an XSRF-TOKEN cookie value.
	CSRFTokenSize = 32

	minOpaqueTokenBytes = 16
	maxOpaqueTokenBytes = 1024
)

// ErrInvalidTokenLength is returned for opaque token sizes below 128 bits
// or above the supported maximum.
var ErrInvalidTokenLength = errors.New("invalid opaque token length")

// GenerateOpaqueToken returns byteLength bytes from crypto/rand, hex encoded.
func GenerateOpaqueToken(byteLength int) (string, error) {
	if byteLength < minOpaqueTokenBytes || byteLength > maxOpaqueTokenBytes {
		return "", ErrInvalidTokenLength
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func NewRefreshSecret() ([RefreshSecretSize]byte, error) {
	var secret [RefreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashToken is the at-rest form of a refresh token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
