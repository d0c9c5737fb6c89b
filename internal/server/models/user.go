// Package models holds the persisted entities of the registry and the shapes
// they take in web API responses.
package models

// RegistryUser is an account known to the registry. Roles is a
// comma-separated list of role names.
type RegistryUser struct {
	ID       int64  `json:"id"`
	IsActive bool   `json:"isActive"`
	Email    string `json:"email"`
	Login    string `json:"login"`
	Name     string `json:"name"`
	Roles    string `json:"roles"`
}
