package auth

import "time"

// TokenKind distinguishes personal user tokens from registry-wide ones.
type TokenKind string

const (
	TokenKindUser   TokenKind = "user"
	TokenKindGlobal TokenKind = "global"
)

// RegistryUserToken is a persisted credential as shown to its owner. Only a
// hash of the secret is stored, so the secret itself never appears here.
type RegistryUserToken struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	LastUsed time.Time `json:"lastUsed"`
	CanWrite bool      `json:"canWrite"`
	CanAdmin bool      `json:"canAdmin"`
}

// RegistryUserTokenWithSecret additionally carries the plaintext secret. It
// exists only in the response to the creation call and must never be
// persisted.
type RegistryUserTokenWithSecret struct {
	RegistryUserToken
	Secret string `json:"secret"`
}

// TokenUsage is one authentication event against a token, buffered in memory
// and flushed to storage in batches.
type TokenUsage struct {
	Kind      TokenKind
	TokenID   int64
	Timestamp time.Time
}
