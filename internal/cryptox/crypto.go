// Package cryptox implements the credential primitives of the registry:
// generation, parsing and one-way hashing of token secrets.
//
// A token secret has the form
//
//	cgh_<kind><id>_<64 hex chars>
//
// where kind is "u" for user tokens and "g" for registry-wide tokens. The id
// is embedded so that authentication can look the token row up directly and
// verify the secret against a single salted hash, instead of scanning the
// table. Only the hash and salt are stored.
package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	secretPrefix = "cgh"
	// secretBytes is the entropy of a token secret before hex encoding.
	secretBytes = 32
	saltBytes   = 16
)

// KindMarker returns the one-letter marker embedded in secrets of this kind.
func KindMarker(kind string) (string, error) {
	switch kind {
	case "user":
		return "u", nil
	case "global":
		return "g", nil
	default:
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
}

// MakeTokenSecret generates a fresh secret for the token with the given kind
// marker and id.
func MakeTokenSecret(marker string, id int64) (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token secret: %w", err)
	}
	return fmt.Sprintf("%s_%s%d_%s", secretPrefix, marker, id, hex.EncodeToString(buf)), nil
}

// ParseTokenSecret splits a presented secret into its kind marker and token
// id. The random part is not inspected here; VerifyTokenSecret compares the
// whole string against the stored hash.
func ParseTokenSecret(secret string) (marker string, id int64, err error) {
	parts := strings.Split(secret, "_")
	if len(parts) != 3 || parts[0] != secretPrefix {
		return "", 0, fmt.Errorf("malformed token secret")
	}
	body := parts[1]
	if len(body) < 2 {
		return "", 0, fmt.Errorf("malformed token secret")
	}
	marker = body[:1]
	if marker != "u" && marker != "g" {
		return "", 0, fmt.Errorf("malformed token secret")
	}
	id, err = strconv.ParseInt(body[1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed token secret")
	}
	if len(parts[2]) != secretBytes*2 {
		return "", 0, fmt.Errorf("malformed token secret")
	}
	return marker, id, nil
}

// NewSalt returns a fresh random salt for hashing one secret.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// HashTokenSecret derives the stored hash of a secret with argon2id.
func HashTokenSecret(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt, 1, 64*1024, 4, 32)
}

// VerifyTokenSecret reports whether the presented secret matches the stored
// hash. The comparison is constant time.
func VerifyTokenSecret(secret string, salt []byte, hash []byte) bool {
	computed := HashTokenSecret(secret, salt)
	return subtle.ConstantTimeCompare(computed, hash) == 1
}
