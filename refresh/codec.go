package refresh

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SecretSize is the required length of the random secret segment.
	SecretSize = 32
	// MinKeySize is the minimum HMAC key length accepted by [NewCodec].
	MinKeySize = 32

	maxUserIDLength = 128
)

var (
	// ErrKeyTooShort is returned by NewCodec for keys below MinKeySize.
	ErrKeyTooShort = errors.New("refresh signing key too short")
	// ErrMalformed is returned for tokens that do not have the expected shape.
	ErrMalformed = errors.New("malformed refresh token")
	// ErrBadSignature is returned when the signature does not verify.
	ErrBadSignature = errors.New("refresh token signature invalid")
)

var enc = base64.RawURLEncoding

// Codec signs and verifies refresh tokens with a process-wide HMAC key.
//
// Codec instances are immutable after construction and safe for concurrent use.
type Codec struct {
	key []byte
}

// NewCodec copies key and returns a Codec that signs with it.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) < MinKeySize {
		return nil, ErrKeyTooShort
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Codec{key: k}, nil
}

// Encode builds the signed token for userID and secret.
func (c *Codec) Encode(userID string, secret [SecretSize]byte) (string, error) {
	if userID == "" || len(userID) > maxUserIDLength {
		return "", ErrMalformed
	}

	signing := enc.EncodeToString([]byte(userID)) + "." + enc.EncodeToString(secret[:])
	sig, err := jwt.SigningMethodHS256.Sign(signing, c.key)
	if err != nil {
		return "", err
	}

	return signing + "." + enc.EncodeToString(sig), nil
}

// Decode verifies the signature and returns the embedded user id.
func (c *Codec) Decode(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", ErrMalformed
	}

	rawUser, err := enc.DecodeString(parts[0])
	if err != nil || len(rawUser) == 0 || len(rawUser) > maxUserIDLength {
		return "", ErrMalformed
	}
	rawSecret, err := enc.DecodeString(parts[1])
	if err != nil || len(rawSecret) != SecretSize {
		return "", ErrMalformed
	}
	sig, err := enc.DecodeString(parts[2])
	if err != nil || len(sig) == 0 {
		return "", ErrMalformed
	}

	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.key); err != nil {
		return "", ErrBadSignature
	}

	return string(rawUser), nil
}
