package models

// TokenCredentials is the verification data of one token row. UserID is zero
// for registry-wide tokens.
type TokenCredentials struct {
	ID       int64
	UserID   int64
	Hash     []byte
	Salt     []byte
	CanWrite bool
	CanAdmin bool
}
