// Package common defines sentinel errors shared by the repository and service
// layers of the registry. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Token lifecycle errors.
	ErrorTokenNameExists = errors.New("a token with the same name already exists")
	ErrInvalidToken      = errors.New("invalid token")

	// Storage errors.
	ErrorStorageUnavailable = errors.New("artifact storage is unavailable")
)
